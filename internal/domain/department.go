package domain

import "strings"

// Department identifies one organizational unit that can hold, document, and
// forward a case. The set of valid departments is closed and supplied by the
// template catalog; the engine never invents department values.
type Department string

// DepartmentNone marks a case that has not entered (or has fully left) the
// routing workflow.
const DepartmentNone Department = ""

// NormalizeDepartment trims and lowercases a raw department identifier.
func NormalizeDepartment(raw string) Department {
	return Department(strings.TrimSpace(strings.ToLower(raw)))
}

// containsDepartment reports whether dept is present in the list.
func containsDepartment(list []Department, dept Department) bool {
	for _, d := range list {
		if d == dept {
			return true
		}
	}
	return false
}
