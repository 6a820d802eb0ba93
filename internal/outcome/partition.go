package outcome

// #region partition

// Unsegmented is the reserved segment key for records with no segment
// label. Such records are grouped, never discarded.
const Unsegmented = "unsegmented"

// Partition groups records by their segment label. Pure function.
func Partition(records []Record) map[string][]Record {
	parts := make(map[string][]Record)
	for _, rec := range records {
		seg := rec.Segment
		if seg == "" {
			seg = Unsegmented
		}
		parts[seg] = append(parts[seg], rec)
	}
	return parts
}

// #endregion
