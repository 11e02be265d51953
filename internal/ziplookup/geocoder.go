package ziplookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var ErrNotFound = errors.New("zip not found")

type Place struct {
	City  string
	State string
}

// Geocoder resolves a 5-digit US ZIP to a city and state.
type Geocoder interface {
	Name() string
	Lookup(ctx context.Context, zip string) (Place, error)
}

type zippopotamus struct {
	baseURL string
	http    *http.Client
}

func NewZippopotamus(baseURL string, c *http.Client) Geocoder {
	if baseURL == "" {
		baseURL = "https://api.zippopotam.us"
	}
	return &zippopotamus{baseURL: strings.TrimRight(baseURL, "/"), http: c}
}

func (g *zippopotamus) Name() string { return "zippopotamus" }

func (g *zippopotamus) Lookup(ctx context.Context, zip string) (Place, error) {
	var body struct {
		Places []struct {
			PlaceName string `json:"place name"`
			StateAbbr string `json:"state abbreviation"`
		} `json:"places"`
	}
	if err := getJSON(ctx, g.http, g.baseURL+"/us/"+url.PathEscape(zip), &body); err != nil {
		return Place{}, err
	}
	if len(body.Places) == 0 || body.Places[0].PlaceName == "" {
		return Place{}, ErrNotFound
	}
	return Place{City: body.Places[0].PlaceName, State: body.Places[0].StateAbbr}, nil
}

type postalCodes struct {
	baseURL string
	http    *http.Client
}

func NewPostalCodes(baseURL string, c *http.Client) Geocoder {
	if baseURL == "" {
		baseURL = "https://api.postal-codes.com"
	}
	return &postalCodes{baseURL: strings.TrimRight(baseURL, "/"), http: c}
}

func (g *postalCodes) Name() string { return "postal-codes" }

func (g *postalCodes) Lookup(ctx context.Context, zip string) (Place, error) {
	var body struct {
		City      string `json:"city"`
		StateCode string `json:"state_code"`
	}
	u := g.baseURL + "/postal_code?" + url.Values{"code": {zip}, "country": {"US"}}.Encode()
	if err := getJSON(ctx, g.http, u, &body); err != nil {
		return Place{}, err
	}
	if body.City == "" || body.StateCode == "" {
		return Place{}, ErrNotFound
	}
	return Place{City: body.City, State: body.StateCode}, nil
}

type zipCodeStack struct {
	baseURL string
	http    *http.Client
}

func NewZipCodeStack(baseURL string, c *http.Client) Geocoder {
	if baseURL == "" {
		baseURL = "https://api.zipcodestack.com"
	}
	return &zipCodeStack{baseURL: strings.TrimRight(baseURL, "/"), http: c}
}

func (g *zipCodeStack) Name() string { return "zipcodestack" }

func (g *zipCodeStack) Lookup(ctx context.Context, zip string) (Place, error) {
	var body struct {
		Results map[string][]struct {
			City      string `json:"city"`
			StateCode string `json:"state_code"`
		} `json:"results"`
	}
	u := g.baseURL + "/v1/search?" + url.Values{"codes": {zip}}.Encode()
	if err := getJSON(ctx, g.http, u, &body); err != nil {
		return Place{}, err
	}
	rs := body.Results[zip]
	if len(rs) == 0 || rs[0].City == "" {
		return Place{}, ErrNotFound
	}
	return Place{City: rs[0].City, State: rs[0].StateCode}, nil
}

func getJSON(ctx context.Context, c *http.Client, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("geocoder %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(v)
}
