package users

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Sortable columns.
const (
	SortFirstName = "firstName"
	SortLastName  = "lastName"
	SortEmail     = "email"
	SortRole      = "role"
	SortManager   = "manager"
	SortStatus    = "status"
)

var sortColumns = map[string]func(User) string{
	SortFirstName: func(u User) string { return u.FirstName },
	SortLastName:  func(u User) string { return u.LastName },
	SortEmail:     func(u User) string { return u.Email },
	SortRole:      func(u User) string { return u.Role },
	SortManager:   func(u User) string { return u.Manager },
	SortStatus:    func(u User) string { return u.Status },
}

// Query holds the list controls of the user page.
type Query struct {
	Search  string
	Sort    string
	Desc    bool
	Page    int
	PerPage int
}

// Result is one rendered page of users.
type Result struct {
	Rows       []User
	Filtered   []User
	Pagination shared.Pagination
}

// fold strips accents and case so "Éloïse" matches "eloise". Casers and
// transformers are stateful, so both are built per call.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

// Filter keeps users whose first name, last name, email or role contains
// search.
func Filter(all []User, search string) []User {
	needle := fold(strings.TrimSpace(search))
	if needle == "" {
		return all
	}
	out := make([]User, 0, len(all))
	for _, u := range all {
		for _, field := range []string{u.FirstName, u.LastName, u.Email, u.Role} {
			if strings.Contains(fold(field), needle) {
				out = append(out, u)
				break
			}
		}
	}
	return out
}

// Sort orders users by column. Unknown columns keep the input order.
func Sort(list []User, column string, desc bool) []User {
	key, ok := sortColumns[column]
	if !ok {
		return list
	}
	out := slices.Clone(list)
	slices.SortStableFunc(out, func(a, b User) int {
		c := cmp.Compare(fold(key(a)), fold(key(b)))
		if desc {
			return -c
		}
		return c
	})
	return out
}

// Apply filters, sorts and paginates all.
func Apply(all []User, q Query) Result {
	filtered := Sort(Filter(all, q.Search), q.Sort, q.Desc)
	p := shared.NewPagination(q.Page, q.PerPage, len(filtered))
	start, end := p.Bounds()
	return Result{Rows: filtered[start:end], Filtered: filtered, Pagination: p}
}
