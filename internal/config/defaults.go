package config

// Default prompt templates. Every template is overridable in the config file;
// these mirror the prompts the pipeline was tuned with.

// GetDefaultOutlineTemplate returns the default template for the outline stage
func GetDefaultOutlineTemplate() string {
	return `You are an expert tabletop RPG campaign designer. Create a structured campaign outline for the following request:

"{{.Request}}"

{{.Context}}

The outline must define a three-act campaign arc with named NPCs and locations that recur across acts.

Return ONLY a valid JSON object with this exact structure (no markdown, no additional text):
{
  "title": "<campaign title>",
  "core_concept": "<2-3 sentence pitch>",
  "themes": ["<theme>", ...],
  "estimated_sessions": <number>,
  "central_mystery": "<the question driving the campaign>",
  "acts": [
    {"number": 1, "title": "<act title>", "sessions": <number>, "key_scenes": ["<scene>", ...]},
    {"number": 2, "title": "<act title>", "sessions": <number>, "key_scenes": ["<scene>", ...]},
    {"number": 3, "title": "<act title>", "sessions": <number>, "key_scenes": ["<scene>", ...]}
  ],
  "key_npcs": [{"name": "<name>", "role": "<role>", "importance": "<major|supporting>"}, ...],
  "key_locations": [{"name": "<name>", "type": "<type>", "importance": "<major|supporting>"}, ...]
}

IMPORTANT: Your response must be valid JSON and nothing else.`
}

// GetDefaultActNarrativeTemplate returns the default template for per-act plot
// narratives
func GetDefaultActNarrativeTemplate() string {
	return `You are an expert tabletop RPG campaign designer writing the plot structure for the campaign "{{.Title}}".

Core concept: {{.CoreConcept}}
Central mystery: {{.CentralMystery}}

{{.PreviousActs}}

Write a detailed plot narrative for Act {{.ActNumber}}: "{{.ActTitle}}" ({{.Sessions}} sessions). Cover how the act opens, the major developments and revelations, how the key NPCs and locations feature, and how the act hands off to what follows. Write flowing prose, not bullet points. Aim for 400-700 words.`
}

// GetDefaultPlotElementsTemplate returns the default template for the
// structural plot elements call
func GetDefaultPlotElementsTemplate() string {
	return `You are an expert tabletop RPG campaign designer. Based on the campaign outline and act narratives below, identify the structural plot elements.

CAMPAIGN: {{.Title}}
{{.ActSummaries}}

Return ONLY a valid JSON object (no markdown, no additional text):
{
  "turning_points": ["<moment that changes the direction of the campaign>", ...],
  "player_agency": ["<decision point where players meaningfully shape the story>", ...],
  "cliffhangers": ["<session-ending hook>", ...]
}`
}

// GetDefaultActContentTemplate returns the default template for long-form act
// content in the detailed content stage
func GetDefaultActContentTemplate() string {
	return `You are writing the game master's guide for the campaign "{{.Title}}".

Plot narrative for this act:
{{.Narrative}}

Expand Act {{.ActNumber}}: "{{.ActTitle}}" into table-ready material: scene-by-scene guidance, read-aloud text where it helps, skill challenges, likely player detours, and pacing advice for the game master. Use markdown subheadings. Aim for 800-1200 words.`
}

// GetDefaultNPCDetailTemplate returns the default template for NPC write-ups
func GetDefaultNPCDetailTemplate() string {
	return `You are writing the NPC roster for the campaign "{{.Title}}" ({{.CoreConcept}}).

Write a detailed game master's entry for the NPC "{{.Name}}" ({{.Hint}}). Include: appearance and mannerisms, motivation and secrets, relationship to the central mystery ("{{.CentralMystery}}"), how they behave toward the party, and how they change across the campaign. 250-400 words of flowing prose.`
}

// GetDefaultLocationDetailTemplate returns the default template for location
// write-ups
func GetDefaultLocationDetailTemplate() string {
	return `You are writing the gazetteer for the campaign "{{.Title}}" ({{.CoreConcept}}).

Write a detailed game master's entry for the location "{{.Name}}" ({{.Hint}}). Include: sensory description for read-aloud use, who is found there, what the party can learn or obtain there, its connection to the central mystery ("{{.CentralMystery}}"), and how it changes across the campaign. 250-400 words of flowing prose.`
}

// GetDefaultAdditionalElementsTemplate returns the default template for the
// supplementary elements call at the end of the content stage
func GetDefaultAdditionalElementsTemplate() string {
	return `You are an expert tabletop RPG campaign designer. For the campaign "{{.Title}}" ({{.CoreConcept}}), generate supplementary campaign elements.

Return ONLY a valid JSON object (no markdown, no additional text):
{
  "recurring_themes": ["<theme woven through multiple acts>", ...],
  "player_agency_moments": ["<choice with lasting consequences>", ...],
  "potential_betrayals": ["<ally who may turn, and why>", ...],
  "campaign_tone": "<one sentence describing the intended tone>",
  "side_quests": ["<optional adventure hook>", ...],
  "recurring_villains": ["<antagonist who returns, and how>", ...]
}`
}

// GetDefaultPolishTemplate returns the default template for the polish stage
func GetDefaultPolishTemplate() string {
	return `You are an editor preparing a tabletop RPG campaign document for publication. Polish the draft below: fix inconsistencies in names and facts, smooth transitions between sections, normalize the markdown heading structure, and tighten the prose. Do NOT summarize, shorten significantly, or drop sections. Return the complete polished document and nothing else.

DRAFT:
{{.Content}}`
}

// GetDefaultReviewTemplate returns the default rubric for the review pass
func GetDefaultReviewTemplate() string {
	return `You are an experienced game master reviewing a campaign document for a publisher. Evaluate the document below against the rubric.

DOCUMENT:
{{.Content}}

For each of the 4 criteria, provide a "reasoning" sentence and a "score" from 1 to 5 (1 = unusable, 3 = functional, 5 = exceptional):
1. structure - clear act progression, coherent pacing
2. depth - NPCs and locations detailed enough to run without improvisation
3. consistency - names, facts, and tone agree across sections
4. usability - a game master could run this at the table as written

Return ONLY a valid JSON object with this exact structure (no markdown, no additional text):
{
  "structure": {"score": <1-5>, "reasoning": "<analysis>"},
  "depth": {"score": <1-5>, "reasoning": "<analysis>"},
  "consistency": {"score": <1-5>, "reasoning": "<analysis>"},
  "usability": {"score": <1-5>, "reasoning": "<analysis>"}
}

IMPORTANT: Your response must be valid JSON and nothing else.`
}
