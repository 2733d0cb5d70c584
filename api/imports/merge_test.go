package imports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffMappings(t *testing.T) {
	old := map[string]string{
		"account_number": "Acct#",
		"ssn":            "SSN",
		"dob":            "DOB",
		"notes":          "",
	}
	new := map[string]string{
		"account_number": "Account Number",
		"dob":            "",
	}

	dropped := DiffMappings(old, new)
	assert.Equal(t, []string{"dob", "ssn"}, dropped)
}

func TestDiffMappingsEmptyOld(t *testing.T) {
	assert.Empty(t, DiffMappings(nil, map[string]string{"ssn": "SSN"}))
	assert.Empty(t, DiffMappings(map[string]string{}, nil))
}

func TestMergeMappingsNewWins(t *testing.T) {
	old := map[string]string{"account_number": "Acct#", "ssn": "SSN"}
	new := map[string]string{"account_number": "Account Number", "dob": "DOB"}

	merged := MergeMappings(old, new)
	assert.Equal(t, map[string]string{
		"account_number": "Account Number",
		"ssn":            "SSN",
		"dob":            "DOB",
	}, merged)

	// Merging leaves nothing from old behind
	assert.Empty(t, DiffMappings(old, merged))
}

func TestResolveMappings(t *testing.T) {
	old := map[string]string{"account_number": "Acct#", "ssn": "SSN"}
	new := map[string]string{"account_number": "Account Number"}

	merged, ok := ResolveMappings(old, new, ResolutionMerge)
	require.True(t, ok)
	assert.Equal(t, "SSN", merged["ssn"])
	assert.Equal(t, "Account Number", merged["account_number"])

	replaced, ok := ResolveMappings(old, new, ResolutionReplace)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"account_number": "Account Number"}, replaced)

	// Replace returns a copy, not the caller's map
	replaced["ssn"] = "SSN"
	_, has := new["ssn"]
	assert.False(t, has)
}

func TestResolveMappingsRefusesUnknownStrategy(t *testing.T) {
	old := map[string]string{"ssn": "SSN"}
	new := map[string]string{}

	_, ok := ResolveMappings(old, new, "")
	assert.False(t, ok)

	_, ok = ResolveMappings(old, new, "overwrite")
	assert.False(t, ok)
}
