package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hostinger/garp-service/internal/announce"
	"github.com/hostinger/garp-service/internal/logger"
	"github.com/hostinger/garp-service/internal/sender"
)

// Source is what the status endpoint reports on.
type Source interface {
	Announcements() []announce.Announcement
	Stats() sender.Stats
}

type API struct {
	Source Source
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type AnnouncementView struct {
	Interface    string `json:"interface"`
	HardwareAddr string `json:"hwAddr"`
	IP           string `json:"ip"`
	IPv6         string `json:"ipv6"`
	DUTMAC       string `json:"dut_mac"`
	DstIPv6      string `json:"dst_ipv6"`
}

type AnnouncementsResponse struct {
	Announcements []AnnouncementView `json:"announcements"`
	Count         int                `json:"count"`
	Cycles        uint64             `json:"cycles"`
	LastCycle     *time.Time         `json:"last_cycle,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/announcements", a.ListAnnouncementsHandler)
	return mux
}

func (a *API) ListAnnouncementsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET is supported")
		return
	}

	anns := a.Source.Announcements()
	output := make([]AnnouncementView, 0, len(anns))
	for _, ann := range anns {
		output = append(output, AnnouncementView{
			Interface:    ann.Interface,
			HardwareAddr: ann.HardwareAddr.String(),
			IP:           ann.IP.String(),
			IPv6:         ann.IPv6.String(),
			DUTMAC:       ann.DUTMAC.String(),
			DstIPv6:      ann.DstIPv6.String(),
		})
	}

	stats := a.Source.Stats()
	resp := AnnouncementsResponse{
		Announcements: output,
		Count:         len(output),
		Cycles:        stats.Cycles,
		Timestamp:     time.Now().UTC(),
	}
	if !stats.LastCycle.IsZero() {
		last := stats.LastCycle.UTC()
		resp.LastCycle = &last
	}

	writeJSONResponse(w, resp)
}

func writeJSONResponse(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

func writeErrorResponse(w http.ResponseWriter, code int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: errType, Message: message, Code: code}); err != nil {
		logger.Error("Failed to encode error response: %v", err)
	}
}
