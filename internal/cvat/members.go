package cvat

import (
	"context"
	"fmt"
	"net/http"

	"github.com/patrickmn/go-cache"
)

// ListMemberships returns the members of the organization. Results are cached.
func (c *Client) ListMemberships(ctx context.Context) ([]Membership, error) {
	cacheKey := "memberships:" + c.config.Org
	if cached, found := c.cache.Get(cacheKey); found {
		if members, ok := cached.([]Membership); ok {
			return members, nil
		}
	}

	q := c.orgQuery()
	q.Set("page_size", "100")
	members, err := listAll[Membership](ctx, c, "/api/memberships", q)
	if err != nil {
		return nil, err
	}
	c.cache.Set(cacheKey, members, cache.DefaultExpiration)
	return members, nil
}

// UserNames maps user ids of the organization members to display names
func (c *Client) UserNames(ctx context.Context) (map[int]string, error) {
	members, err := c.ListMemberships(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int]string, len(members))
	for i := range members {
		names[members[i].User.ID] = members[i].User.DisplayName()
	}
	return names, nil
}

// GetUser fetches one user
func (c *Client) GetUser(ctx context.Context, userID int) (*User, error) {
	cacheKey := fmt.Sprintf("user:%d", userID)
	if cached, found := c.cache.Get(cacheKey); found {
		if u, ok := cached.(*User); ok {
			return u, nil
		}
	}
	var u User
	if err := c.do(ctx, &request{method: http.MethodGet, path: fmt.Sprintf("/api/users/%d", userID)}, &u); err != nil {
		return nil, err
	}
	c.cache.Set(cacheKey, &u, cache.DefaultExpiration)
	return &u, nil
}
