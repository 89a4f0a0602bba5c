// Package collaborators holds the HTTP clients for the external catalog
// and member services. Both are read-only lookups guarded by a circuit
// breaker; the borrowing service decides how to degrade when they fail.
package collaborators

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"library-system/pkg/borrowing"
	"library-system/pkg/circuitbreaker"
)

const (
	breakerMaxFailures = 5
	breakerCooldown    = 30 * time.Second
)

type CatalogClient struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

func NewCatalogClient(baseURL string) *CatalogClient {
	return &CatalogClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: circuitbreaker.New(breakerMaxFailures, breakerCooldown),
	}
}

func (c *CatalogClient) CopyExists(copyUid string) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/copies/%s", c.baseURL, copyUid)
	var exists bool
	err := c.breaker.Do(func() error {
		resp, err := c.client.Get(url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			exists = true
			return nil
		case http.StatusNotFound:
			exists = false
			return nil
		default:
			return fmt.Errorf("catalog service returned status %d", resp.StatusCode)
		}
	})
	return exists, err
}

func (c *CatalogClient) GetCopy(copyUid string) (borrowing.CopyInfo, error) {
	url := fmt.Sprintf("%s/api/v1/copies/%s", c.baseURL, copyUid)
	var info borrowing.CopyInfo
	err := c.breaker.Do(func() error {
		resp, err := c.client.Get(url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("catalog service returned status %d", resp.StatusCode)
		}
		var body struct {
			BookUid    string `json:"bookUid"`
			CopyNumber string `json:"copyNumber"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("failed to decode catalog response: %w", err)
		}
		info = borrowing.CopyInfo{BookUid: body.BookUid, CopyNumber: body.CopyNumber}
		return nil
	})
	return info, err
}

type MemberClient struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

func NewMemberClient(baseURL string) *MemberClient {
	return &MemberClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: circuitbreaker.New(breakerMaxFailures, breakerCooldown),
	}
}

func (m *MemberClient) MemberExists(memberUid string) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/members/%s", m.baseURL, memberUid)
	var exists bool
	err := m.breaker.Do(func() error {
		resp, err := m.client.Get(url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			exists = true
			return nil
		case http.StatusNotFound:
			exists = false
			return nil
		default:
			return fmt.Errorf("member service returned status %d", resp.StatusCode)
		}
	})
	return exists, err
}

func (m *MemberClient) IsBlocked(memberUid string) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/members/%s/status", m.baseURL, memberUid)
	var blocked bool
	err := m.breaker.Do(func() error {
		resp, err := m.client.Get(url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("member service returned status %d", resp.StatusCode)
		}
		var body struct {
			Blocked bool `json:"blocked"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("failed to decode member response: %w", err)
		}
		blocked = body.Blocked
		return nil
	})
	return blocked, err
}
