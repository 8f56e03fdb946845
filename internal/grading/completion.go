package grading

import "errors"

// ErrEmptyMaster is returned when the master dictionary has no fields, which
// leaves the completion percentage undefined.
var ErrEmptyMaster = errors.New("master dictionary is empty")

// CompletionPct returns the fraction of master field names that also appear
// in the student's field names. Both inputs are treated as sets.
func CompletionPct(master, student []string) (float64, error) {
	masterSet := toSet(master)
	if len(masterSet) == 0 {
		return 0, ErrEmptyMaster
	}
	studentSet := toSet(student)

	correct := 0
	for name := range masterSet {
		if _, ok := studentSet[name]; ok {
			correct++
		}
	}
	return float64(correct) / float64(len(masterSet)), nil
}

// MissingFields lists master field names absent from the student dictionary,
// in master order.
func MissingFields(master, student []string) []string {
	studentSet := toSet(student)
	seen := make(map[string]struct{}, len(master))
	var missing []string
	for _, name := range master {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if _, ok := studentSet[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func toSet(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}
