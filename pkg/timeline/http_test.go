package timeline

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
)

func TestRegisterRoutes(t *testing.T) {
	router := mux.NewRouter()
	NewHTTPHandler(nil, nil, 0).Register(router)

	cases := []struct{ method, path string }{
		{http.MethodPost, "/events"},
		{http.MethodGet, "/events/e1"},
		{http.MethodPost, "/variables"},
		{http.MethodGet, "/variables/v1"},
		{http.MethodGet, "/patients/p1/events"},
		{http.MethodGet, "/patients/p1/context"},
		{http.MethodGet, "/patients/p1/milestones/nearest"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		var match mux.RouteMatch
		if !router.Match(req, &match) {
			t.Fatalf("%s %s is not routed", tc.method, tc.path)
		}
	}
}
