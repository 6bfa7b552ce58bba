package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/MrWong99/jarvis/internal/capability"
)

const defaultWeatherURL = "https://wttr.in"

type weather struct {
	client  *http.Client
	baseURL string
}

// Report is the subset of a wttr.in j1 document the assistant speaks.
type Report struct {
	Area        string
	TempC       string
	FeelsLikeC  string
	Humidity    string
	Description string
}

// ParseReport extracts a [Report] from a wttr.in "format=j1" JSON document.
func ParseReport(doc []byte) (Report, error) {
	if !gjson.ValidBytes(doc) {
		return Report{}, fmt.Errorf("weather: invalid JSON")
	}
	cur := gjson.GetBytes(doc, "current_condition.0")
	if !cur.Exists() {
		return Report{}, fmt.Errorf("weather: no current conditions")
	}
	return Report{
		Area:        gjson.GetBytes(doc, "nearest_area.0.areaName.0.value").String(),
		TempC:       cur.Get("temp_C").String(),
		FeelsLikeC:  cur.Get("FeelsLikeC").String(),
		Humidity:    cur.Get("humidity").String(),
		Description: strings.TrimSpace(cur.Get("weatherDesc.0.value").String()),
	}, nil
}

// Sentence renders r for speech.
func (r Report) Sentence(location string) string {
	place := location
	if place == "" {
		place = r.Area
	}
	var b strings.Builder
	if place != "" {
		fmt.Fprintf(&b, "In %s it's ", place)
	} else {
		b.WriteString("It's ")
	}
	fmt.Fprintf(&b, "%s°C", r.TempC)
	if r.Description != "" {
		fmt.Fprintf(&b, " and %s", strings.ToLower(r.Description))
	}
	if r.FeelsLikeC != "" && r.FeelsLikeC != r.TempC {
		fmt.Fprintf(&b, ", feels like %s°C", r.FeelsLikeC)
	}
	if r.Humidity != "" {
		fmt.Fprintf(&b, ", humidity %s%%", r.Humidity)
	}
	return b.String()
}

func (w *weather) get(ctx context.Context, req capability.Request) capability.Result {
	loc := req.Param("location")
	endpoint := w.baseURL + "/" + url.PathEscape(loc) + "?format=j1"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return capability.Result{Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	resp, err := w.client.Do(httpReq)
	if err != nil {
		return capability.Fail("I couldn't reach the weather service")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return capability.Fail("The weather service returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return capability.Fail("I couldn't read the weather report")
	}
	rep, err := ParseReport(body)
	if err != nil {
		return capability.Fail("I couldn't find weather for %s", loc)
	}
	return capability.OK("%s", rep.Sentence(loc))
}
