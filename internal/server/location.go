package server

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"

	"attendance/pkg/device"
	"attendance/pkg/geo"
)

const locationExample = "/location?latitude=40.7128&longitude=-74.0060"

type placeSummary struct {
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
}

type locationResponse struct {
	Success               bool            `json:"success"`
	Coordinates           geo.Coordinates `json:"coordinates"`
	Location              placeSummary    `json:"location"`
	HumanReadableLocation string          `json:"humanReadableLocation"`
	Timestamp             time.Time       `json:"timestamp"`
}

// location resolves a point given as query (latitude|lat, longitude|lng),
// then JSON body, then path params.
func (s *Server) location(c *fiber.Ctx) error {
	lat := firstNonEmpty(c.Query("latitude"), c.Query("lat"))
	lng := firstNonEmpty(c.Query("longitude"), c.Query("lng"))
	if (lat == "" || lng == "") && len(c.Body()) > 0 {
		var body map[string]any
		if err := sonic.Unmarshal(c.Body(), &body); err == nil {
			lat = firstNonEmpty(text(body["latitude"]), text(body["lat"]))
			lng = firstNonEmpty(text(body["longitude"]), text(body["lng"]))
		}
	}
	if lat == "" || lng == "" {
		lat, lng = c.Params("lat"), c.Params("lng")
	}

	received := fiber.Map{"latitude": lat, "longitude": lng}
	if lat == "" || lng == "" {
		return badRequest(c, envelope{
			Error:    "Latitude and longitude are required",
			Example:  locationExample,
			Received: received,
		})
	}
	la, err1 := strconv.ParseFloat(lat, 64)
	lo, err2 := strconv.ParseFloat(lng, 64)
	if err1 != nil || err2 != nil || math.IsNaN(la) || math.IsNaN(lo) {
		return badRequest(c, envelope{
			Error:    "Latitude and longitude must be valid numbers",
			Hint:     "Make sure values are numbers between -180 and 180",
			Received: received,
		})
	}
	coords := geo.Coordinates{Latitude: la, Longitude: lo}
	if err := coords.Validate(); err != nil {
		return badRequest(c, envelope{
			Error:    "Coordinates out of range",
			Hint:     "Latitude must be between -90 and 90, Longitude between -180 and 180",
			Received: coords,
		})
	}

	place := s.deps.Locator.Lookup(c.UserContext(), coords)
	return c.JSON(locationResponse{
		Success:     true,
		Coordinates: coords,
		Location: placeSummary{
			Address: orDefault(place.Address.Road, "Unknown Address"),
			City:    orDefault(place.Address.City, "Unknown City"),
			State:   orDefault(place.Address.State, "Unknown State"),
		},
		HumanReadableLocation: place.DisplayName,
		Timestamp:             s.deps.Now().UTC(),
	})
}

func (s *Server) device(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"device":  device.Parse(c.Get(fiber.HeaderUserAgent)),
	})
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
