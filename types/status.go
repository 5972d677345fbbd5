package types

// TestStatus represents the outcome of a test, a run or an aggregate of them.
type TestStatus string

const (
	TestStatusPass TestStatus = "pass"
	TestStatusFail TestStatus = "fail"
	TestStatusSkip TestStatus = "skip"
)

// Valid reports whether s is one of the known statuses.
func (s TestStatus) Valid() bool {
	switch s {
	case TestStatusPass, TestStatusFail, TestStatusSkip:
		return true
	}
	return false
}

// AggregateStatus rolls child statuses up into a parent status:
// any failure fails the parent, all-skipped (including no children at all)
// skips it, anything else passes.
func AggregateStatus(statuses []TestStatus) TestStatus {
	skipped := 0
	for _, s := range statuses {
		switch s {
		case TestStatusFail:
			return TestStatusFail
		case TestStatusSkip:
			skipped++
		}
	}
	if skipped == len(statuses) {
		return TestStatusSkip
	}
	return TestStatusPass
}
