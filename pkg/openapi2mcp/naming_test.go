package openapi2mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnakeCase(t *testing.T) {
	cases := map[string]string{
		"listAccount":             "list_account",
		"getAccountByID":          "get_account_by_id",
		"HTMLParser":              "html_parser",
		"list-all.things":         "list_all_things",
		"listAccounts2":           "list_accounts2",
		"already_snake":           "already_snake",
		"  spaced  out ":          "spaced_out",
		"GetAccountsByid":         "get_accounts_byid",
		"getChartAccountOverview": "get_chart_account_overview",
		"":                        "",
		"---":                     "",
	}
	for in, want := range cases {
		assert.Equal(t, want, snakeCase(in), in)
	}
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Accounts", titleCase("accounts"))
	assert.Equal(t, "PiggyBanks", titleCase("piggy_banks"))
	assert.Equal(t, "CurrencyExchangeRates", titleCase("currency-exchange-rates"))
	assert.Equal(t, "Userid", titleCase("{userId}"))
}

func TestGenerateOperationID(t *testing.T) {
	cases := []struct {
		method, path, want string
	}{
		{"get", "/accounts/{id}", "get_accounts_by_id"},
		{"GET", "/accounts", "get_accounts"},
		{"get", "/", "get_root"},
		{"delete", "/users/{userId}/posts", "delete_users_posts"},
		{"get", "/users/{userId}/posts/{postId}", "get_users_posts_by_postid"},
		{"get", "/{id}", "get_by_id"},
		{"post", "/v1/piggy_banks", "post_v1_piggy_banks"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, generateOperationID(c.method, c.path), c.method+" "+c.path)
	}
}

func TestSanitizeToolName(t *testing.T) {
	assert.Equal(t, "a_b_c", sanitizeToolName("a.b c"))
	assert.Equal(t, "list_accounts-v2", sanitizeToolName("List_Accounts-v2"))
	assert.Equal(t, "caf_", sanitizeToolName("café"))
}

func TestBaseToolName(t *testing.T) {
	assert.Equal(t, "list_account", baseToolName("listAccount", "get", "/v1/accounts"))
	assert.Equal(t, "get_accounts_by_id", baseToolName("", "get", "/accounts/{id}"))
	assert.Equal(t, "", baseToolName("...", "get", "/x"))
}
