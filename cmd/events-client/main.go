package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func main() {
	url := flag.String("url", "ws://127.0.0.1:8080/ws", "websocket events endpoint")
	origin := flag.String("origin", "http://localhost:3000", "Origin header sent on connect")
	pretty := flag.Bool("pretty", true, "pretty print JSON events")
	flag.Parse()

	log := logrus.New()
	for {
		if err := run(*url, *origin, *pretty, log); err != nil {
			log.WithError(err).Warn("disconnected")
		}
		time.Sleep(time.Second)
	}
}

func run(url, origin string, pretty bool, log logrus.FieldLogger) error {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	log.WithField("url", url).Info("connected")
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if !pretty {
			fmt.Println(string(msg))
			continue
		}

		var obj map[string]any
		if err := json.Unmarshal(msg, &obj); err != nil {
			fmt.Println(string(msg))
			continue
		}
		b, _ := json.MarshalIndent(obj, "", "  ")
		fmt.Println(string(b))
	}
}
