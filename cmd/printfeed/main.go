package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/mastercactapus/printfeed/gcode"
	"github.com/mastercactapus/printfeed/printer"
	"github.com/mastercactapus/printfeed/spjs"
)

func main() {
	log.SetFlags(log.Lshortfile)

	baud := flag.Int("baud", 115200, "Serial baud rate.")
	spjsURL := flag.String("spjs", "", "Websocket URL of an SPJS server to use instead of a direct serial connection.")
	statusReport := flag.Bool("statusreport", false, "Print progress as a percentage.")
	verbose := flag.Bool("verbose", false, "Print each line as it is sent.")
	addr := flag.String("addr", "", "Optional address to bind the HTTP API to.")
	dir := flag.String("dir", "./data", "Data directory for the HTTP API.")
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: printfeed [flags] PORT FILE")
		flag.PrintDefaults()
		os.Exit(2)
	}
	port, filename := flag.Arg(0), flag.Arg(1)

	var adapter printer.Adapter
	if *spjsURL != "" {
		adapter = printer.NewSPJSAdapter(spjs.NewClient(*spjsURL), port, *baud)
	} else {
		sa, err := printer.Dial(port, *baud)
		if err != nil {
			log.Fatal(err)
		}
		// opening the port resets most boards; give the firmware a
		// moment to boot before syncing the line counter
		time.Sleep(2 * time.Second)
		if err = sa.ResetLineNumber(); err != nil {
			log.Fatal(err)
		}
		adapter = sa
	}

	f, err := os.Open(filename)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	log.Printf("Printing %s on %s at %d baud", filename, port, *baud)

	doc := gcode.NewLightDocument()
	feed := bufio.NewScanner(f)
	add := func() {
		for feed.Scan() {
			if doc.Append(feed.Text()) != nil {
				return
			}
		}
	}

	p := printer.NewPrinter(adapter)
	if *verbose {
		p.OnSend = func(l gcode.Line) { log.Println(">", l.Raw()) }
	}
	p.OnConsumed = add

	// prime the queue so the sender never starves
	for i := 0; i < 100; i++ {
		add()
	}

	if err = p.StartPrint(doc); err != nil {
		log.Fatal(err)
	}

	if *addr != "" {
		api := newAPI(p, *dir)
		go func() {
			err := http.ListenAndServe(*addr, api)
			if err != nil {
				log.Fatal(err)
			}
		}()
	}

	for p.Printing() {
		time.Sleep(100 * time.Millisecond)
		if *statusReport {
			sent, total := p.Progress()
			var pct float64
			if total > 0 {
				pct = 100 * float64(sent) / float64(total)
			}
			fmt.Printf("Progress: %d / %d = %04.1f%%\r", sent, total, pct)
		}
	}
	if *statusReport {
		fmt.Println()
	}

	s := p.DocumentState()
	log.Printf("Done. Filament used: %.2fmm, pause time: %s", s.TotalE, s.Dwell)

	err = adapter.Close()
	if err != nil {
		log.Println("ERROR: close:", err)
	}
}
