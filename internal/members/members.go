// Package members lists the organization members and splits them into
// admins and annotators.
package members

import (
	"context"
	"fmt"
	"io"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/assign"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/conf"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
)

// Member is a flattened membership
type Member struct {
	ID          int
	Username    string
	DisplayName string
	Email       string
	Role        string
}

// Roster is the organization split by role. Workers and supervisors are
// annotators; owners and maintainers are admins.
type Roster struct {
	Admins     []Member
	Annotators []Member
}

// All returns admins followed by annotators
func (r *Roster) All() []Member {
	out := make([]Member, 0, len(r.Admins)+len(r.Annotators))
	out = append(out, r.Admins...)
	return append(out, r.Annotators...)
}

// Assignees converts annotators to config entries
func (r *Roster) Assignees() []conf.Assignee {
	out := make([]conf.Assignee, len(r.Annotators))
	for i, m := range r.Annotators {
		out[i] = conf.Assignee{ID: m.ID, Name: m.DisplayName}
	}
	return out
}

// Split builds a roster from memberships, keeping their order
func Split(memberships []cvat.Membership) *Roster {
	r := &Roster{}
	for i := range memberships {
		ms := &memberships[i]
		m := Member{
			ID:          ms.User.ID,
			Username:    ms.User.Username,
			DisplayName: ms.User.DisplayName(),
			Email:       ms.User.Email,
			Role:        ms.Role,
		}
		if ms.IsAdmin() {
			r.Admins = append(r.Admins, m)
		} else {
			r.Annotators = append(r.Annotators, m)
		}
	}
	return r
}

// Fetch lists the organization members
func Fetch(ctx context.Context, client *cvat.Client) (*Roster, error) {
	memberships, err := client.ListMemberships(ctx)
	if err != nil {
		return nil, err
	}
	return Split(memberships), nil
}

// Print writes the detailed listing followed by one "id\tname\trole" line
// per member.
func Print(w io.Writer, r *Roster) {
	section := func(title string, list []Member) {
		if len(list) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s (%d):\n", title, len(list))
		for _, m := range list {
			fmt.Fprintf(w, "   - %s (@%s) [ID: %d]\n", m.DisplayName, m.Username, m.ID)
			fmt.Fprintf(w, "     role: %s, email: %s\n", m.Role, m.Email)
		}
	}
	section("Admins", r.Admins)
	section("Annotators", r.Annotators)

	fmt.Fprintln(w)
	for _, m := range r.All() {
		fmt.Fprintf(w, "%d\t%s\t%s\n", m.ID, m.DisplayName, m.Role)
	}
}

// People converts configured assignees to assignable people
func People(assignees []conf.Assignee) []assign.Person {
	out := make([]assign.Person, len(assignees))
	for i, a := range assignees {
		out[i] = assign.Person{ID: a.ID, Name: a.Name}
	}
	return out
}

// Person converts a member to an assignable person
func (m Member) Person() assign.Person {
	return assign.Person{ID: m.ID, Name: m.DisplayName}
}
