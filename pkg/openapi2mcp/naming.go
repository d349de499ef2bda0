package openapi2mcp

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	splitLowerUpper = regexp.MustCompile(`([\p{Ll}\d])(\p{Lu})`)
	splitUpperUpper = regexp.MustCompile(`(\p{Lu})([\p{Lu}][\p{Ll}])`)
	stripNonWord    = regexp.MustCompile(`[^\p{L}\d]+`)
	invalidToolChar = regexp.MustCompile(`(?i)[^a-z0-9_-]`)
)

// snakeCase splits s into words at case changes and non-alphanumeric runs,
// then joins the lowercased words with underscores. Digits stay attached to
// the word before them: "listAccounts2" becomes "list_accounts2".
func snakeCase(s string) string {
	s = splitLowerUpper.ReplaceAllString(s, "${1}\x00${2}")
	s = splitUpperUpper.ReplaceAllString(s, "${1}\x00${2}")
	s = stripNonWord.ReplaceAllString(s, "\x00")
	s = strings.Trim(s, "\x00")
	if s == "" {
		return ""
	}
	words := strings.Split(s, "\x00")
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return strings.Join(words, "_")
}

// titleCase lowercases s, uppercases the character after each '-', '_' or
// '/', drops the braces of a path parameter and capitalizes the first letter.
func titleCase(s string) string {
	in := []rune(strings.ToLower(s))
	out := make([]rune, 0, len(in))
	for i := 0; i < len(in); i++ {
		if (in[i] == '-' || in[i] == '_' || in[i] == '/') && i+1 < len(in) {
			out = append(out, unicode.ToUpper(in[i+1]))
			i++
			continue
		}
		out = append(out, in[i])
	}
	res := string(out)
	res = strings.TrimPrefix(res, "{")
	res = strings.TrimSuffix(res, "}")
	return upperFirst(res)
}

func upperFirst(s string) string {
	for i, r := range s {
		return string(unicode.ToUpper(r)) + s[i+len(string(r)):]
	}
	return s
}

// generateOperationID synthesizes a name for an operation without an
// operationId from its static path segments. A path parameter only adds a
// By<Param> suffix when it is the final segment: GET /accounts/{id} becomes
// get_accounts_by_id and GET /users/{userId}/posts becomes get_users_posts.
func generateOperationID(method, path string) string {
	verb := strings.ToLower(method)
	name := verb
	var parts []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	for i, part := range parts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			if i == len(parts)-1 {
				name += "By" + titleCase(part)
			}
			continue
		}
		name += titleCase(part)
	}
	if name == verb {
		name += "Root"
	}
	return snakeCase(upperFirst(name))
}

// sanitizeToolName restricts a name to [a-z0-9_-].
func sanitizeToolName(name string) string {
	name = strings.ReplaceAll(name, ".", "_")
	name = invalidToolChar.ReplaceAllString(name, "_")
	return strings.ToLower(name)
}

// baseToolName returns the sanitized, pre-deduplication name of an operation.
func baseToolName(operationID, method, path string) string {
	var name string
	if operationID != "" {
		name = snakeCase(operationID)
	} else {
		name = generateOperationID(method, path)
	}
	if name == "" {
		return ""
	}
	return sanitizeToolName(name)
}
