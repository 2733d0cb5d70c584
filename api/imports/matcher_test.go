package imports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchFieldsCollectionFileHeaders(t *testing.T) {
	headers := []string{"Acct#", "SSN", "Bal", "DOB"}
	fields := []string{"account_number", "ssn", "current_balance", "dob"}

	res := MatchFieldsDetailed(headers, fields)

	assert.Equal(t, map[string]string{
		"account_number":  "Acct#",
		"ssn":             "SSN",
		"current_balance": "Bal",
		"dob":             "DOB",
	}, res.Mapping)

	// Every pairing here should clear the strict pass on its own
	for field, score := range res.Scores {
		assert.GreaterOrEqual(t, score, 0.6, "field %s", field)
	}
	assert.Equal(t, 1.0, res.Scores["ssn"])
	assert.Equal(t, 1.0, res.Scores["dob"])
}

func TestMatchFieldsPunctuationOnlyDifference(t *testing.T) {
	res := MatchFieldsDetailed([]string{"Account Number!"}, []string{"account_number"})
	assert.Equal(t, "Account Number!", res.Mapping["account_number"])
	assert.Equal(t, 1.0, res.Scores["account_number"])
}

func TestMatchFieldsAbbreviationExpansion(t *testing.T) {
	res := MatchFieldsDetailed([]string{"Orig Bal"}, []string{"original_balance"})
	assert.Equal(t, "Orig Bal", res.Mapping["original_balance"])
	assert.GreaterOrEqual(t, res.Scores["original_balance"], 0.6)
}

func TestMatchFieldsNoPlausibleHeaderStaysUnmapped(t *testing.T) {
	mapping := MatchFields([]string{"Favorite Color"}, []string{"ssn"})
	_, ok := mapping["ssn"]
	assert.False(t, ok)
}

func TestMatchFieldsHeaderClaimedOnce(t *testing.T) {
	headers := []string{"Balance", "Balance Amount"}
	fields := []string{"original_balance", "current_balance"}

	mapping := MatchFields(headers, fields)

	// original_balance is visited first and wins the stronger header; the
	// relaxed pass then hands current_balance the remaining one.
	assert.Equal(t, "Balance", mapping["original_balance"])
	assert.Equal(t, "Balance Amount", mapping["current_balance"])

	seen := make(map[string]bool)
	for _, h := range mapping {
		assert.False(t, seen[h], "header %s assigned twice", h)
		seen[h] = true
	}
}

func TestMatchFieldsDeterministic(t *testing.T) {
	headers := []string{"Acct#", "SSN", "Bal", "DOB", "First Name", "Last Name"}
	fields := []string{"account_number", "ssn", "current_balance", "dob", "first_name", "last_name"}

	first := MatchFields(headers, fields)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, MatchFields(headers, fields))
	}
}

func TestMatchFieldsMultiValuedSlots(t *testing.T) {
	headers := []string{"Email", "Work Email", "Home Phone", "Cell Phone"}
	fields := []string{"email_primary", "phone_primary"}

	res := MatchFieldsDetailed(headers, fields)

	assert.Equal(t, "Email", res.Mapping["email_primary"])
	assert.Equal(t, "Work Email", res.Mapping["email_primary_2"])
	assert.Equal(t, "Home Phone", res.Mapping["phone_primary"])
	assert.Equal(t, "Cell Phone", res.Mapping["phone_primary_2"])
	assert.Equal(t, 1.0, res.Scores["email_primary_2"])
}

func TestMatchFieldsMultiValuedGatedOnBaseField(t *testing.T) {
	// Without phone_primary in the target fields, phone headers stay unmapped
	res := MatchFieldsDetailed([]string{"Home Phone"}, []string{"email_primary"})
	assert.Empty(t, res.Mapping)
}

func TestSimilarityScoreBounds(t *testing.T) {
	pairs := [][2]string{
		{"Acct#", "account_number"},
		{"Bal", "current_balance"},
		{"Orig Bal", "original_balance"},
		{"SSN", "ssn"},
		{"Favorite Color", "ssn"},
	}
	for _, p := range pairs {
		s := similarityScore(p[0], p[1])
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
	assert.Equal(t, 0.95, similarityScore("accountnumber", "account_number"))
}

func TestValidateRequiredMapped(t *testing.T) {
	mapping := map[string]string{"account_number": "Acct#", "ssn": ""}

	err := ValidateRequiredMapped(mapping, []string{"account_number"})
	require.NoError(t, err)

	err = ValidateRequiredMapped(mapping, []string{"account_number", "ssn"})
	require.Error(t, err)
	var me *MappingError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "ssn", me.Field)

	err = ValidateRequiredMapped(mapping, []string{"original_balance"})
	require.Error(t, err)
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "original_balance", me.Field)
}
