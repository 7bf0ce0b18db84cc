package main

import (
	"encoding/json"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"

	"github.com/mastercactapus/printfeed/coord"
	"github.com/mastercactapus/printfeed/printer"
)

type api struct {
	http.Handler
	p       *printer.Printer
	dataDir string
	sse     *sse.Server
}

type stateResponse struct {
	Printing bool `json:"printing"`
	Paused   bool `json:"paused"`
	Sent     int  `json:"sent"`
	Total    int  `json:"total"`

	Position      coord.Point `json:"position"`
	TotalExtruded float64     `json:"totalExtruded"`
	MaxExtruded   float64     `json:"maxExtruded"`
	Feedrate      float64     `json:"feedrate"`

	Hotend printer.Temperature `json:"hotend"`
	Bed    printer.Temperature `json:"bed"`
}

func newAPI(p *printer.Printer, dir string) *api {
	r := mux.NewRouter()

	a := &api{
		Handler: r,
		p:       p,
		dataDir: dir,
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(ioutil.Discard, "", 0),
		}),
	}

	r.HandleFunc("/api/state", a.getState).Methods("GET")
	r.HandleFunc("/api/pause", a.pause).Methods("POST")
	r.HandleFunc("/api/resume", a.resume).Methods("POST")
	r.HandleFunc("/api/cancel", a.cancel).Methods("POST")
	r.HandleFunc("/api/send", a.send).Methods("POST")

	fs := http.FileServer(http.Dir(dir))
	r.PathPrefix("/data/").Handler(http.StripPrefix("/data", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case "GET":
			fs.ServeHTTP(w, req)
		case "PUT":
			a.putFile(w, req)
		case "DELETE":
			a.deleteFile(w, req)
		default:
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		}
	})))

	r.PathPrefix("/events/").Handler(a.sse)
	go a.stateLoop()

	return a
}

func (a *api) snapshot() stateResponse {
	sent, total := a.p.Progress()
	doc := a.p.DocumentState()
	fw := a.p.CurrentState()
	return stateResponse{
		Printing:      a.p.Printing(),
		Paused:        a.p.Paused(),
		Sent:          sent,
		Total:         total,
		Position:      doc.Pos,
		TotalExtruded: doc.TotalE,
		MaxExtruded:   doc.MaxE,
		Feedrate:      doc.Feedrate,
		Hotend:        fw.Hotend,
		Bed:           fw.Bed,
	}
}

func (a *api) stateLoop() {
	tick := time.NewTicker(time.Second)
	for {
		select {
		case <-a.p.State():
		case <-tick.C:
		}
		data, err := json.Marshal(a.snapshot())
		if err != nil {
			log.Printf("ERROR: marshal json: %+v", err)
			continue
		}
		a.sse.SendMessage("/events/state", sse.SimpleMessage(string(data)))
	}
}

func (a *api) getState(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(a.snapshot())
	if err != nil {
		log.Println("ERROR: encode state:", err)
	}
}

func (a *api) pause(w http.ResponseWriter, req *http.Request) {
	a.p.Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) resume(w http.ResponseWriter, req *http.Request) {
	a.p.Resume()
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) cancel(w http.ResponseWriter, req *http.Request) {
	a.p.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

// send queues raw g-code from the request body, for manual control
// between jobs.
func (a *api) send(w http.ResponseWriter, req *http.Request) {
	_, err := a.p.ReadFrom(req.Body)
	if err != nil {
		log.Println("ERROR: send:", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func safePath(base, name string) (bool, string) {
	if filepath.Separator != '/' && strings.ContainsRune(name, filepath.Separator) {
		log.Println("invalid path '" + name + "'")
		return false, ""
	}
	dir := base
	if dir == "" {
		dir = "."
	}
	fullName := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+name)))
	return true, fullName
}

func (a *api) putFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	f, err := os.Create(name)
	if err != nil {
		log.Println("ERROR: create file:", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	_, err = io.Copy(f, req.Body)
	if err != nil {
		log.Println("ERROR: write file:", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) deleteFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	err := os.Remove(name)
	if err != nil {
		log.Println("ERROR: remove file:", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
