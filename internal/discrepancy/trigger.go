package discrepancy

import "github.com/pingsantohq/cidbench/internal/probe"

// Trigger decides whether an iteration's outcome pair is evidence. It returns
// the row to append and true when it is.
type Trigger func(identifier string, direct, counterpart probe.Outcome) (Record, bool)

// FetchTrigger fires when the direct backend served the identifier and the
// counterpart did not. Skipped backends never count as failures.
func FetchTrigger(identifier string, direct, counterpart probe.Outcome) (Record, bool) {
	if !asymmetric(direct, counterpart) {
		return Record{}, false
	}
	return Record{Identifier: identifier}, true
}

// ProviderTrigger is FetchTrigger restricted to iterations where the direct
// backend resolved at least one provider. The row lists those providers.
func ProviderTrigger(identifier string, direct, counterpart probe.Outcome) (Record, bool) {
	if !asymmetric(direct, counterpart) || len(direct.Providers) == 0 {
		return Record{}, false
	}
	providers := append([]string{}, direct.Providers...)
	return Record{Identifier: identifier, Providers: providers}, true
}

func asymmetric(direct, counterpart probe.Outcome) bool {
	return direct.Configured() && direct.Succeeded &&
		counterpart.Configured() && !counterpart.Succeeded
}

// Check runs trigger on the pair and appends the resulting row, if any.
func (l *Logger) Check(trigger Trigger, identifier string, direct, counterpart probe.Outcome) (bool, error) {
	if l == nil || trigger == nil {
		return false, nil
	}
	rec, ok := trigger(identifier, direct, counterpart)
	if !ok {
		return false, nil
	}
	return true, l.Append(rec)
}
