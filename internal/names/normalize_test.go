package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"last first with initial", "SHAYLOR, MATTHEW C.", "matthew c shaylor"},
		{"first last", "Matthew Shaylor", "matthew shaylor"},
		{"upper", "JOHN SMITH", "john smith"},
		{"comma order", "Smith, John", "john smith"},
		{"honorific", "Mr. John Smith", "john smith"},
		{"doctor", "Dr. Jane Doe", "jane doe"},
		{"suffix", "John Smith Jr.", "john smith"},
		{"suffix before comma", "Smith Jr., John", "john smith"},
		{"suffix after second comma", "Smith, John, III", "john smith"},
		{"stacked suffixes", "John Smith Jr. II", "john smith"},
		{"roman numeral", "Robert Green IV", "robert green"},
		{"punctuation", "Mary-Kate O'Neil", "mary kate o neil"},
		{"whitespace", "  John    Q.   Public  ", "john q public"},
		{"diacritics", "José Núñez", "jose nunez"},
		{"digits kept", "Driver 12", "driver 12"},
		{"only honorific is kept", "Mrs.", "mrs"},
		{"single name after honorific", "Mr. V", "v"},
		{"single name after honorific and suffix", "Dr. Prince Jr.", "prince"},
		{"dangling comma", "Smith,", "smith"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalize_Placeholders(t *testing.T) {
	for _, in := range []string{"", "   ", "N/A", "nan", "NaN", "None", "Unassigned", "OPEN", "vacant", "TBD", "-", "n a"} {
		assert.Equal(t, "", Normalize(in), "input %q", in)
	}
	assert.Equal(t, Normalize("N/A"), Normalize(""))
	assert.Equal(t, Normalize(""), Normalize("Unassigned"))
}

func TestNormalize_Equivalence(t *testing.T) {
	want := Normalize("John Smith")
	assert.Equal(t, want, Normalize("Smith, John"))
	assert.Equal(t, want, Normalize("JOHN SMITH"))
	assert.Equal(t, want, Normalize("  smith ,  john "))
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"SHAYLOR, MATTHEW C.",
		"Smith Jr., John",
		"smith-jr",
		"Mr. Mrs. Dr. Who",
		"John Smith Jr. II",
		"José Núñez, Sr.",
		"İstanbul Driver",
		"O'Brien, Patrick, PhD",
		"Open",
		"N/A",
		"  ,  ",
		"v",
		"Jr, Sr",
		"Mr. V",
		"a,b,c,d",
		"ǅemal Bašić",
		"\t\n",
		"123",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, IsPlaceholder(" Vacant "))
	assert.False(t, IsPlaceholder("Val Cant"))
}
