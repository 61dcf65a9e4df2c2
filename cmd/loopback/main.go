// Command loopback drives the cellSecC2cAtClient scenario (SPEC_FULL §8)
// end to end over an in-memory Transport: a client context frames an AT
// command, a modem context decrypts it and replies with an encrypted
// "\r\nOK\r\n" (the -response default), and the client decrypts the reply. It exists for manual
// smoke-testing and CI, grounded on cmd/loadtest/main.go's flag-based CLI,
// logrus logging, and signal-handling conventions.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/c2c-secure-channel/channel"
	"github.com/kenneth/c2c-secure-channel/internal/diagnostics"
	"github.com/kenneth/c2c-secure-channel/internal/metrics"
	"github.com/kenneth/c2c-secure-channel/internal/transport"
)

func main() {
	var (
		command   = flag.String("command", "AT+BLAH0=thing-thing\r", "AT command the client sends")
		response  = flag.String("response", "\r\nOK\r\n", "response the modem sends back")
		scheme    = flag.String("scheme", "v1", "authentication scheme: v1 or v2")
		chunkSize = flag.Int("chunk-plain-max", 1008, "egress accumulator capacity in bytes")
		verbose   = flag.Bool("verbose", false, "enable debug logging")
		diagAddr  = flag.String("diagnostics-addr", "", "if set, serve health/ready/live/debug/metrics routes on this address (e.g. :9090)")
	)
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received interrupt signal, exiting")
		os.Exit(130)
	}()

	sch := channel.SchemeV1
	if *scheme == "v2" {
		sch = channel.SchemeV2
	}

	m := metrics.NewMetrics()

	client, err := newDemoContext("client", sch, *chunkSize, m, logger)
	if err != nil {
		logger.WithError(err).Fatal("build client context")
	}
	defer client.Close()
	modem, err := newDemoContext("modem", sch, *chunkSize, m, logger)
	if err != nil {
		logger.WithError(err).Fatal("build modem context")
	}
	defer modem.Close()
	client.Arm()
	modem.Arm()

	if *diagAddr != "" {
		reg := diagnostics.SliceRegistry{client, modem}
		srv := diagnostics.NewServer(reg, nil, logger, m)
		r := mux.NewRouter()
		srv.RegisterRoutes(r)
		go func() {
			if err := http.ListenAndServe(*diagAddr, r); err != nil {
				logger.WithError(err).Error("diagnostics server exited")
			}
		}()
		logger.WithField("addr", *diagAddr).Info("diagnostics server listening")
	}

	clientEnd, modemEnd := transport.NewPipe()
	defer clientEnd.Close()
	defer modemEnd.Close()

	start := time.Now()

	wire, err := encodeMessage(client, []byte(*command))
	if err != nil {
		logger.WithError(err).Fatal("encode command")
	}
	if _, err := clientEnd.Write(wire); err != nil {
		logger.WithError(err).Fatal("write command to transport")
	}

	received := readN(modemEnd, len(wire))
	gotCommand, _, err := modem.Consume(received, len(received))
	if err != nil {
		logger.WithError(err).Fatal("modem decode command")
	}
	logger.WithFields(logrus.Fields{"scheme": sch, "command": string(gotCommand)}).Info("modem received command")

	replyWire, err := encodeMessage(modem, []byte(*response))
	if err != nil {
		logger.WithError(err).Fatal("encode response")
	}
	if _, err := modemEnd.Write(replyWire); err != nil {
		logger.WithError(err).Fatal("write response to transport")
	}

	receivedReply := readN(clientEnd, len(replyWire))
	gotResponse, _, err := client.Consume(receivedReply, len(receivedReply))
	if err != nil {
		logger.WithError(err).Fatal("client decode response")
	}

	fmt.Printf("command:  %q\n", *command)
	fmt.Printf("received: %q\n", string(gotCommand))
	fmt.Printf("response: %q\n", *response)
	fmt.Printf("received: %q\n", string(gotResponse))
	logger.WithField("elapsed", time.Since(start)).Info("loopback scenario complete")
}

func newDemoContext(id string, scheme channel.Scheme, chunkPlainMax int, m *metrics.Metrics, logger *logrus.Logger) (*channel.SecurityContext, error) {
	teSecret := make([]byte, 16)
	encKey := make([]byte, 16)
	hmacKey := make([]byte, 16)
	for i := 0; i < 16; i++ {
		teSecret[i] = byte(i)
		encKey[i] = byte(0x10 + i)
		hmacKey[i] = byte(0x20 + i)
	}
	return channel.NewSecurityContext(channel.Config{
		ID:            id,
		Scheme:        scheme,
		TESecret:      teSecret,
		EncryptionKey: encKey,
		HMACKey:       hmacKey,
		ChunkPlainMax: chunkPlainMax,
		Metrics:       m,
		Logger:        logger,
	})
}

func encodeMessage(ctx *channel.SecurityContext, plaintext []byte) ([]byte, error) {
	var wire []byte
	off := 0
	for off < len(plaintext) {
		room := ctx.ChunkPlainMax() - ctx.AccumulatorFill()
		end := off + room
		if end > len(plaintext) {
			end = len(plaintext)
		}
		chunk, err := ctx.Feed(plaintext[off:end])
		if err != nil {
			return nil, err
		}
		wire = append(wire, chunk...)
		off = end
	}
	last, err := ctx.Flush()
	if err != nil {
		return nil, err
	}
	return append(wire, last...), nil
}

func readN(t *transport.Endpoint, n int) []byte {
	buf := make([]byte, n)
	total := 0
	for total < n {
		read, err := t.Read(buf[total:])
		if err != nil {
			break
		}
		total += read
	}
	return buf[:total]
}
