// Package demo contains sample flows: a person search whose result list
// opens a person detail subflow. They are served by the CLI and exercise the
// engine end to end in tests.
package demo

import (
	"errors"
	"sort"
	"strings"
)

// ErrPersonNotFound is raised by the detail flow for unknown ids.
var ErrPersonNotFound = errors.New("person not found")

// Person is a directory entry.
type Person struct {
	ID         int
	FirstName  string
	LastName   string
	Phone      string
	Colleagues []int
}

// Attributes converts p to a scope-friendly map; snapshots store only
// builtin types.
func (p Person) Attributes() map[string]any {
	colleagues := make([]any, 0, len(p.Colleagues))
	for _, id := range p.Colleagues {
		colleagues = append(colleagues, id)
	}
	return map[string]any{
		"id":         p.ID,
		"firstName":  p.FirstName,
		"lastName":   p.LastName,
		"phone":      p.Phone,
		"colleagues": colleagues,
	}
}

// Directory is an in-memory person store.
type Directory struct {
	people map[int]Person
}

// NewDirectory returns a directory with the given people, or a small
// sample set when none are given.
func NewDirectory(people ...Person) *Directory {
	if len(people) == 0 {
		people = []Person{
			{ID: 1, FirstName: "Keith", LastName: "Donald", Phone: "555-0101", Colleagues: []int{2, 3}},
			{ID: 2, FirstName: "Erwin", LastName: "Vervaet", Phone: "555-0102", Colleagues: []int{1}},
			{ID: 3, FirstName: "Colin", LastName: "Sampaleanu", Phone: "555-0103", Colleagues: []int{1, 4}},
			{ID: 4, FirstName: "Juergen", LastName: "Hoeller", Phone: "555-0104", Colleagues: []int{3}},
			{ID: 5, FirstName: "Rod", LastName: "Donaldson", Phone: "555-0105"},
		}
	}
	d := &Directory{people: make(map[int]Person, len(people))}
	for _, p := range people {
		d.people[p.ID] = p
	}
	return d
}

// Search returns people whose last name starts with prefix, ignoring
// case, ordered by id. An empty prefix matches everyone.
func (d *Directory) Search(prefix string) []Person {
	prefix = strings.ToLower(prefix)
	var out []Person
	for _, p := range d.people {
		if strings.HasPrefix(strings.ToLower(p.LastName), prefix) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the person with id.
func (d *Directory) Get(id int) (Person, bool) {
	p, ok := d.people[id]
	return p, ok
}
