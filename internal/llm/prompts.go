// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"text/template"
)

var metadataPromptTmpl = template.Must(template.New("metadata").Parse(`You extract bibliographic metadata from the text of a scientific paper.

<paper_text>
{{.Text}}
</paper_text>

Extract:
- title: the full paper title
- authors: list of authors formatted "Last, F." (first initial only)
- year: four-digit publication year
- abstract: the abstract if present
- keywords: key scientific terms
- short_title: 4-6 words stating the KEY FINDING in active voice ("Cover Crops Increase Soil Carbon")
- suggested_topic: a broad kebab-case topic{{if .Topics}} chosen from the allowed topics below, several separated by "|"{{end}}
{{if .Topics}}
{{.Topics}}
{{end}}
When a field cannot be determined use null for title, abstract, short_title and suggested_topic, [] for authors and keywords, and null for year.

Return ONLY valid JSON:
{"title": "...", "authors": ["Last, F."], "year": 2024, "abstract": "...", "keywords": ["..."], "short_title": "...", "suggested_topic": "..."}
`))

var classifyPromptTmpl = template.Must(template.New("classify").Parse(`You categorize soil science papers using a FIXED taxonomy.

<paper_metadata>
<title>{{.Title}}</title>
<abstract>{{.Abstract}}</abstract>
<keywords>{{.Keywords}}</keywords>
</paper_metadata>

1. Write a 6-8 word declarative summary of the MAIN FINDING in Title Case. Use active verbs (controls, increases, limits, reveals) and front-load the most distinctive words. No questions, no meta language such as "Study Shows".

2. Select one to three topics from the allowed list:
- Focus on what new knowledge the paper produces, not on contextual variables such as temperature or site.
- Add a method topic only when the method is named in the title or its development is an objective.
- Pick two topics when the paper has two clear research dimensions, one when it has a single focused question, three only when it integrates three distinct areas.
- Do not combine hierarchically related topics unless the paper explicitly compares them.
- Broad reviews without a primary focus, and papers no topic fits, get "needs-review".

{{.Topics}}

Return ONLY valid JSON:
{"summary": "Six To Eight Word Finding Here", "suggested_topic": "topic-one|topic-two"}

Use exact slugs from the allowed list separated by "|" without spaces. Never invent topics. When in doubt use {"summary": "needs-review", "suggested_topic": "needs-review"}.
`))

var summaryPromptTmpl = template.Must(template.New("summary").Parse(`You are a soil science expert writing a concise research summary.

<paper>
<title>{{.Title}}</title>
<abstract>{{.Abstract}}</abstract>
</paper>

Write:
- main_finding: 2-3 sentences on what was discovered, naming the mechanism or relationship and any numbers or conditions given.
- key_approach: 1-2 sentences on methods, design or data.
- implication: 1 sentence on why it matters for soil science or land management.

Return ONLY valid JSON:
{"main_finding": "...", "key_approach": "...", "implication": "..."}
`))

var fulltextPromptTmpl = template.Must(template.New("fulltext").Parse(`You are a soil science expert writing a detailed summary from the full text of a paper.

<paper>
<title>{{.Title}}</title>
<full_text>
{{.Text}}
</full_text>
</paper>

Write:
- main_finding: 3-4 sentences with the key mechanism or pattern, quantitative results and important caveats.
- key_approach: 2-3 sentences on study type, analytical methods and scale.
- key_results: 2-3 sentences with the most important numbers and comparisons.
- implication: 1-2 sentences on practical or theoretical significance.

Return ONLY valid JSON:
{"main_finding": "...", "key_approach": "...", "key_results": "...", "implication": "..."}
`))

var domainPromptTmpl = template.Must(template.New("domain").Parse(`You extract structured soil science attributes from paper metadata.

<paper_metadata>
<title>{{.Title}}</title>
<abstract>{{.Abstract}}</abstract>
</paper_metadata>

Fields (null or [] when not stated):
- study_type: one of field, laboratory, greenhouse, modeling, review, methods
- analytical_methods: e.g. FTIR, MIR, NIR, NMR, XRD, SEM, PLFA, qPCR, DNA-sequencing, density-fractionation, 13C, 15N, elemental-analyzer
- soil_fractions: e.g. bulk-soil, POM, MAOM, aggregates, clay, dissolved-organic-matter, microbial-biomass
- depth_info: sampling depths such as "0-10cm" or "subsoil"
- soil_properties: e.g. SOC, total-N, P, bulk-density, texture, aggregate-stability, enzyme-activity
- ecosystem: one of agricultural, forest, grassland, wetland, arid, tropical, temperate, boreal, alpine, urban, contaminated
- management: e.g. tillage, no-till, cover-crops, crop-rotation, biochar, fertilizer, irrigation, grazing, restoration

Return ONLY valid JSON:
{"study_type": "...", "analytical_methods": [], "soil_fractions": [], "depth_info": [], "soil_properties": [], "ecosystem": "...", "management": []}
`))

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
