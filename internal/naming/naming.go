package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CamelToSnake converts a CamelCase string to snake_case.
// Consecutive uppercase letters (acronyms) are kept together:
// "ID" → "id", "UserID" → "user_id", "CreatedAt" → "created_at".
func CamelToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				next := rune(0)
				if i+1 < len(runes) {
					next = runes[i+1]
				}
				if unicode.IsLower(prev) || (unicode.IsUpper(prev) && unicode.IsLower(next)) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SnakeToCamel converts snake_case to CamelCase: "user_tasks" → "UserTasks".
func SnakeToCamel(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(UpperFirst(p))
	}
	return b.String()
}

// UpperFirst upper-cases the first letter and leaves the rest untouched:
// "tasks" → "Tasks", "subTasks" → "SubTasks".
func UpperFirst(s string) string {
	if s == "" {
		return s
	}
	// A Caser is stateful and must not be shared between goroutines.
	return cases.Title(language.Und, cases.NoLower).String(s)
}

// LowerFirst lower-cases the first rune: "Tasks" → "tasks".
func LowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// Plural returns the plural form of s ("Task" → "Tasks").
func Plural(s string) string { return inflection.Plural(s) }

// Singular returns the singular form of s ("tasks" → "task").
func Singular(s string) string { return inflection.Singular(s) }

// TableName derives a table name from a model name:
// "User" → "users", "UserProfile" → "user_profiles".
func TableName(model string) string {
	return inflection.Plural(CamelToSnake(model))
}

// ForeignKey derives a foreign key attribute name from the name the key
// refers to and the referenced key: ("User", "id") → "user_id",
// ("tasks", "id") → "task_id".
func ForeignKey(owner, key string) string {
	return CamelToSnake(inflection.Singular(owner)) + "_" + CamelToSnake(key)
}
