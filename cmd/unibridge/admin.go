// Copyright (c) 2026 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unibridge/backend"
	"github.com/unibridge/backend/registry"
	"github.com/unibridge/backend/rpcerrors"
	netmetrics "go.uber.org/net/metrics"
)

type adminHandler struct {
	backend *backend.Backend
	meter   *netmetrics.Root
}

// newAdminHandler routes the admin API:
//
//	GET    /metrics                          Prometheus exposition
//	GET    /snapshot[?reset=true]            call metrics as JSON
//	GET    /debug/edges                      per-service net/metrics as JSON
//	GET    /services                         service names
//	GET    /services/{service}               instances of a service
//	POST   /services/{service}/instances     register an instance
//	DELETE /instances?id={id}                deregister an instance
func newAdminHandler(b *backend.Backend, gatherer prometheus.Gatherer, meter *netmetrics.Root) http.Handler {
	h := &adminHandler{backend: b, meter: meter}
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/snapshot", h.snapshot).Methods(http.MethodGet)
	r.HandleFunc("/debug/edges", h.edges).Methods(http.MethodGet)
	r.HandleFunc("/services", h.services).Methods(http.MethodGet)
	r.HandleFunc("/services/{service}", h.instances).Methods(http.MethodGet)
	r.HandleFunc("/services/{service}/instances", h.register).Methods(http.MethodPost)
	r.HandleFunc("/instances", h.deregister).Methods(http.MethodDelete).Queries("id", "{id}")
	return r
}

func (h *adminHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	reset, _ := strconv.ParseBool(r.URL.Query().Get("reset"))
	if reset {
		writeJSON(w, http.StatusOK, h.backend.Metrics().SnapshotAndReset())
		return
	}
	writeJSON(w, http.StatusOK, h.backend.Metrics().Snapshot())
}

func (h *adminHandler) edges(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.meter.Snapshot())
}

func (h *adminHandler) services(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.backend.Registry().Services())
}

type instanceView struct {
	ID                  string          `json:"id"`
	Endpoint            string          `json:"endpoint"`
	Weight              float64         `json:"weight"`
	Status              registry.Status `json:"status"`
	ConsecutiveFailures uint            `json:"consecutiveFailures"`
	Breaker             string          `json:"breaker,omitempty"`
}

func (h *adminHandler) instances(w http.ResponseWriter, r *http.Request) {
	service := mux.Vars(r)["service"]
	instances := h.backend.Registry().Instances(service)
	if len(instances) == 0 {
		writeError(w, http.StatusNotFound, errors.New("unknown service "+strconv.Quote(service)))
		return
	}
	views := make([]instanceView, len(instances))
	for i, inst := range instances {
		views[i] = instanceView{
			ID:                  inst.ID,
			Endpoint:            inst.Endpoint.ID(),
			Weight:              inst.Endpoint.Weight(),
			Status:              inst.Status,
			ConsecutiveFailures: inst.ConsecutiveFailures,
		}
		if brk, ok := h.backend.Breakers().Lookup(inst.ID); ok {
			views[i].Breaker = brk.State().String()
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *adminHandler) register(w http.ResponseWriter, r *http.Request) {
	var ic backend.InstanceConfig
	if err := json.NewDecoder(r.Body).Decode(&ic); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ep, err := ic.Endpoint()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	handle, err := h.backend.Registry().Register(registry.NewInstance(mux.Vars(r)["service"], ep))
	if err != nil {
		code := http.StatusBadRequest
		if rpcerrors.KindOf(err) == rpcerrors.KindDuplicateInstance {
			code = http.StatusConflict
		}
		writeError(w, code, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": handle.ID()})
}

func (h *adminHandler) deregister(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := h.backend.Registry().Lookup(id); !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown instance "+strconv.Quote(id)))
		return
	}
	h.backend.Registry().Deregister(id)
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
