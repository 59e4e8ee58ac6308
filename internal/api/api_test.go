package api

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/hostinger/garp-service/internal/announce"
	"github.com/hostinger/garp-service/internal/sender"
)

type fakeSource struct {
	anns  []announce.Announcement
	stats sender.Stats
}

func (f *fakeSource) Announcements() []announce.Announcement { return f.anns }
func (f *fakeSource) Stats() sender.Stats { return f.stats }

// Helper function to parse hardware address
func parseMAC(s string) net.HardwareAddr {
	mac, _ := net.ParseMAC(s)
	return mac
}

func createAPI(stats sender.Stats) *API {
	return &API{Source: &fakeSource{
		anns: []announce.Announcement{
			{
				Interface:    "eth0",
				HardwareAddr: parseMAC("aa:bb:cc:dd:ee:ff"),
				IP:           netip.MustParseAddr("10.0.0.5"),
				IPv6:         netip.MustParseAddr("2001:db8::5"),
				DUTMAC:       parseMAC("00:11:22:33:44:55"),
				DstIPv6:      netip.MustParseAddr("ff02::1"),
			},
			{
				Interface:    "eth4",
				HardwareAddr: parseMAC("02:00:00:00:00:04"),
				IP:           netip.MustParseAddr("10.0.0.9"),
				IPv6:         netip.MustParseAddr("2001:db8::9"),
				DUTMAC:       parseMAC("00:11:22:33:44:55"),
				DstIPv6:      netip.MustParseAddr("fc02:1000::1"),
			},
		},
		stats: stats,
	}}
}

func TestListAnnouncementsHandler_Success(t *testing.T) {
	last := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	api := createAPI(sender.Stats{Cycles: 7, LastCycle: last})

	req := httptest.NewRequest("GET", "/announcements", nil)
	rr := httptest.NewRecorder()

	api.Handler().ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}
	if contentType := rr.Header().Get("Content-Type"); contentType != "application/json" {
		t.Errorf("handler returned wrong content type: got %v want %v", contentType, "application/json")
	}

	var response AnnouncementsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Could not unmarshal response: %v", err)
	}

	if response.Count != 2 || len(response.Announcements) != 2 {
		t.Fatalf("Expected 2 announcements, got count %d len %d", response.Count, len(response.Announcements))
	}
	if response.Cycles != 7 {
		t.Errorf("Expected 7 cycles, got %d", response.Cycles)
	}
	if response.LastCycle == nil || !response.LastCycle.Equal(last) {
		t.Errorf("Expected last cycle %v, got %v", last, response.LastCycle)
	}

	want := AnnouncementView{
		Interface:    "eth0",
		HardwareAddr: "aa:bb:cc:dd:ee:ff",
		IP:           "10.0.0.5",
		IPv6:         "2001:db8::5",
		DUTMAC:       "00:11:22:33:44:55",
		DstIPv6:      "ff02::1",
	}
	if response.Announcements[0] != want {
		t.Errorf("Expected %+v, got %+v", want, response.Announcements[0])
	}
	if response.Announcements[1].Interface != "eth4" {
		t.Errorf("Expected configuration order to be kept, got %s second", response.Announcements[1].Interface)
	}
}

func TestListAnnouncementsHandler_NoCycleYet(t *testing.T) {
	api := createAPI(sender.Stats{})

	req := httptest.NewRequest("GET", "/announcements", nil)
	rr := httptest.NewRecorder()
	api.ListAnnouncementsHandler(rr, req)

	if strings.Contains(rr.Body.String(), "last_cycle") {
		t.Errorf("Expected last_cycle to be omitted, got %s", rr.Body.String())
	}
}

func TestListAnnouncementsHandler_Empty(t *testing.T) {
	api := &API{Source: &fakeSource{}}

	req := httptest.NewRequest("GET", "/announcements", nil)
	rr := httptest.NewRecorder()
	api.ListAnnouncementsHandler(rr, req)

	var response AnnouncementsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Could not unmarshal response: %v", err)
	}
	if response.Count != 0 || len(response.Announcements) != 0 {
		t.Errorf("Expected no announcements, got %+v", response)
	}
	if !strings.Contains(rr.Body.String(), `"announcements":[]`) {
		t.Errorf("Expected an empty list rather than null, got %s", rr.Body.String())
	}
}

func TestAllMethodNotAllowed(t *testing.T) {
	methods := []string{"POST", "PUT", "DELETE", "PATCH"}

	for _, method := range methods {
		t.Run("ListAnnouncements_"+method, func(t *testing.T) {
			api := createAPI(sender.Stats{})
			req := httptest.NewRequest(method, "/announcements", strings.NewReader("{}"))
			rr := httptest.NewRecorder()

			api.ListAnnouncementsHandler(rr, req)

			if status := rr.Code; status != http.StatusMethodNotAllowed {
				t.Errorf("Expected %d, got %d for method %s", http.StatusMethodNotAllowed, status, method)
			}

			var errorResponse ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &errorResponse); err != nil {
				t.Fatalf("Could not unmarshal error response: %v", err)
			}
			if errorResponse.Error != "method_not_allowed" {
				t.Errorf("Expected error 'method_not_allowed', got %s", errorResponse.Error)
			}
		})
	}
}

func TestWriteErrorResponse(t *testing.T) {
	testCases := []struct {
		code    int
		error   string
		message string
	}{
		{http.StatusBadRequest, "test_error", "Test error message"},
		{http.StatusNotFound, "not_found", "Resource not found"},
		{http.StatusInternalServerError, "internal_error", "Something went wrong"},
	}

	for _, tc := range testCases {
		t.Run(tc.error, func(t *testing.T) {
			rr := httptest.NewRecorder()

			writeErrorResponse(rr, tc.code, tc.error, tc.message)

			if status := rr.Code; status != tc.code {
				t.Errorf("writeErrorResponse set wrong status code: got %v want %v", status, tc.code)
			}

			var errorResponse ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &errorResponse); err != nil {
				t.Fatalf("Could not unmarshal error response: %v", err)
			}

			if errorResponse.Error != tc.error {
				t.Errorf("Expected error '%s', got '%s'", tc.error, errorResponse.Error)
			}
			if errorResponse.Message != tc.message {
				t.Errorf("Expected message '%s', got '%s'", tc.message, errorResponse.Message)
			}
			if errorResponse.Code != tc.code {
				t.Errorf("Expected code %d, got %d", tc.code, errorResponse.Code)
			}
		})
	}
}

func TestWriteJSONResponse_Nil(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSONResponse(rr, nil)

	if contentType := rr.Header().Get("Content-Type"); contentType != "application/json" {
		t.Errorf("writeJSONResponse set wrong content type: got %v want %v", contentType, "application/json")
	}
	if body := rr.Body.String(); body != "null\n" {
		t.Errorf("Expected 'null\\n', got %s", body)
	}
}

func TestLoopSatisfiesSource(t *testing.T) {
	var _ Source = sender.New(nil, nil)
}
