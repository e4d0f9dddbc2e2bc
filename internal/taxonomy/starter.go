// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package taxonomy

// Starter returns the soil-science taxonomy written by "init".
func Starter() File {
	return File{
		Categories: []string{"soil-processes", "soil-fractions", "management", "analytical-methods"},
		Topics: []Topic{
			{Slug: "soil-carbon", Category: "soil-processes", Description: "Carbon storage, stabilization and fluxes"},
			{Slug: "soil-organic-matter", Category: "soil-processes", Description: "Formation and turnover of organic matter"},
			{Slug: "nutrient-cycling", Category: "soil-processes", Description: "Nitrogen, phosphorus and micronutrient cycles"},
			{Slug: "soil-microbiology", Category: "soil-processes", Description: "Microbial communities and their functions"},
			{Slug: "litter-decomposition", Category: "soil-processes", Description: "Breakdown of plant litter and residues"},
			{Slug: "soil-respiration", Category: "soil-processes", Description: "CO2 efflux and its controls"},
			{Slug: "maom", Category: "soil-fractions", Description: "Mineral-associated organic matter"},
			{Slug: "pom", Category: "soil-fractions", Description: "Particulate organic matter"},
			{Slug: "soil-aggregates", Category: "soil-fractions", Description: "Aggregate formation and stability"},
			{Slug: "cover-crops", Category: "management", Description: "Cover cropping effects on soils"},
			{Slug: "tillage", Category: "management", Description: "Tillage and no-till systems"},
			{Slug: "grazing", Category: "management", Description: "Livestock grazing and rangeland soils"},
			{Slug: "biochar", Category: "management", Description: "Biochar and organic amendments"},
			{Slug: "soil-spectroscopy", Category: "analytical-methods", Description: "MIR, NIR, FTIR and related spectral methods"},
			{Slug: "isotope-methods", Category: "analytical-methods", Description: "Stable and radio isotope tracing"},
			{Slug: "soil-modeling", Category: "analytical-methods", Description: "Process models and machine learning"},
		},
		PairingRules: PairingRules{
			Disallowed: [][]string{
				{"soil-carbon", "soil-organic-matter"},
				{"maom", "pom"},
				{"soil-carbon", "soil-respiration"},
			},
			MaxTopics: 3,
		},
	}
}
