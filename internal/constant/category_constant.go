package constant

// Product content categories used as the optional retrieval filter.
// The set is fixed; ingestion tags chunks with one of these (or none).
const (
	CategoryAntibiotics      = "antibiotics"
	CategoryAnalgesics       = "analgesics"
	CategoryCardiovascular   = "cardiovascular"
	CategoryRespiratory      = "respiratory"
	CategoryGastrointestinal = "gastrointestinal"
)

func AllCategories() []string {
	return []string{
		CategoryAntibiotics,
		CategoryAnalgesics,
		CategoryCardiovascular,
		CategoryRespiratory,
		CategoryGastrointestinal,
	}
}

func IsValidCategory(category string) bool {
	for _, c := range AllCategories() {
		if c == category {
			return true
		}
	}
	return false
}
