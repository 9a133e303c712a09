package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/relay-balancer/pkg/logger"
)

var _ = Describe("Logger", func() {
	ctx := context.Background()

	DescribeTable("level filtering",
		func(level string, enabled, disabled slog.Level) {
			log := logger.New(level, false, "dev")
			Expect(log.Enabled(ctx, enabled)).To(BeTrue())
			Expect(log.Enabled(ctx, disabled)).To(BeFalse())
		},
		Entry("debug", "debug", slog.LevelDebug, slog.LevelDebug-1),
		Entry("info", "info", slog.LevelInfo, slog.LevelDebug),
		Entry("warn", "warn", slog.LevelWarn, slog.LevelInfo),
		Entry("error", "error", slog.LevelError, slog.LevelWarn),
		Entry("unknown falls back to info", "verbose", slog.LevelInfo, slog.LevelDebug),
		Entry("case-insensitive", "WARN", slog.LevelWarn, slog.LevelInfo),
	)

	It("writes JSON with the environment in prod", func() {
		var buf bytes.Buffer
		log := logger.NewWithWriter(&buf, "info", false, "prod")
		log.Info("Server is down", slog.String("server", "B2"))

		var record map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &record)).To(Succeed())
		Expect(record).To(HaveKeyWithValue("msg", "Server is down"))
		Expect(record).To(HaveKeyWithValue("environment", "prod"))
		Expect(record).To(HaveKeyWithValue("server", "B2"))
	})

	It("writes text outside prod", func() {
		var buf bytes.Buffer
		log := logger.NewWithWriter(&buf, "info", false, "dev")
		log.Info("Relayed request", slog.Int("status", 200))

		Expect(buf.String()).To(ContainSubstring(`msg="Relayed request"`))
		Expect(buf.String()).To(ContainSubstring("environment=dev"))
		Expect(buf.String()).To(ContainSubstring("status=200"))
	})

	It("adds the source location on request", func() {
		var buf bytes.Buffer
		logger.NewWithWriter(&buf, "info", true, "prod").Info("hello")
		Expect(buf.String()).To(ContainSubstring(`"source"`))
	})
})
