package frontend_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/qc-app/internal/frontend"
)

var _ = Describe("Server", func() {
	Describe("NewServer", func() {
		DescribeTable("rejecting invalid configuration",
			func(cfg *frontend.ServerConfig, message string) {
				server, err := frontend.NewServer(cfg)
				Expect(err).To(MatchError(ContainSubstring(message)))
				Expect(server).To(BeNil())
			},
			Entry("nil config", nil, "server config cannot be nil"),
			Entry("nil logger", &frontend.ServerConfig{
				HTTPPort:        8080,
				BackendGRPCAddr: "localhost:9090",
			}, "logger cannot be nil"),
			Entry("zero port", &frontend.ServerConfig{
				Logger:          discardLogger(),
				BackendGRPCAddr: "localhost:9090",
			}, "HTTP port must be positive"),
			Entry("negative port", &frontend.ServerConfig{
				Logger:          discardLogger(),
				HTTPPort:        -1,
				BackendGRPCAddr: "localhost:9090",
			}, "HTTP port must be positive"),
			Entry("no backend", &frontend.ServerConfig{
				Logger:   discardLogger(),
				HTTPPort: 8080,
			}, "backend gRPC address cannot be empty"),
		)

		It("accepts a gRPC backend address", func() {
			server, err := frontend.NewServer(&frontend.ServerConfig{
				Logger:          discardLogger(),
				HTTPPort:        8080,
				BackendGRPCAddr: "localhost:9090",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(server).NotTo(BeNil())
		})

		It("accepts an in-process API without an address", func() {
			server, err := frontend.NewServer(&frontend.ServerConfig{
				Logger:   discardLogger(),
				HTTPPort: 8080,
				API:      newTestService(nil),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(server).NotTo(BeNil())
		})
	})

	Describe("Run", func() {
		It("returns once the context is canceled", func() {
			server, err := frontend.NewServer(&frontend.ServerConfig{
				Logger:          discardLogger(),
				HTTPPort:        18089,
				BackendGRPCAddr: "localhost:19090",
			})
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			done := make(chan error, 1)
			go func() { done <- server.Run(ctx) }()
			Eventually(done, 15*time.Second).Should(Receive(BeNil()))
		})
	})

	Describe("Shutdown", func() {
		It("is safe before Run and when repeated", func() {
			server, err := frontend.NewServer(&frontend.ServerConfig{
				Logger:          discardLogger(),
				HTTPPort:        8080,
				BackendGRPCAddr: "localhost:9090",
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(server.Shutdown()).To(Succeed())
			Expect(server.Shutdown()).To(Succeed())
		})
	})
})
