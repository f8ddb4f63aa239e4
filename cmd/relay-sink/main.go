// relay-sink is development receiver for relayed payloads.
// POST body is logged, GET answers greeting.
package main

import (
	"flag"
	"io/ioutil"
	"net/http"
	"os"

	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/temoto/thermorelay/log2"
)

const (
	replyPost = "POST request received. Thank you!"
	replyGet  = "Hello! You made GET request."
)

func main() {
	flagListen := flag.String("listen", ":8000", "")
	flagLimit := flag.Int64("limit", 64<<10, "max body bytes")
	flag.Parse()

	log := log2.NewStderr(log2.LDebug)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.SetFlags(log2.LInteractiveFlags)
	}
	log.Infof("relay-sink listen=%s", *flagListen)
	if err := http.ListenAndServe(*flagListen, newHandler(log, *flagLimit)); err != nil {
		log.Fatal(errors.ErrorStack(errors.Annotate(err, "listen")))
	}
}

func newHandler(log *log2.Log, limit int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			body, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, limit))
			if err != nil {
				log.Errorf("remote=%s read body err=%v", r.RemoteAddr, err)
				http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
				return
			}
			log.Infof("POST request path=%s remote=%s agent=%q\nHeaders:\n%sBody:\n%s\n",
				r.URL.Path, r.RemoteAddr, r.UserAgent(), formatHeader(r.Header), body)
			writeText(w, replyPost)
		case http.MethodGet:
			log.Infof("GET request path=%s remote=%s", r.URL.Path, r.RemoteAddr)
			writeText(w, replyGet)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func writeText(w http.ResponseWriter, s string) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(s))
}

func formatHeader(h http.Header) string {
	var b []byte
	for k, vs := range h {
		for _, v := range vs {
			b = append(b, k...)
			b = append(b, ": "...)
			b = append(b, v...)
			b = append(b, '\n')
		}
	}
	return string(b)
}
