package client_test

import (
	"os"
	"path/filepath"

	"github.com/kubev2v/media-analyzer/internal/client"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("client config", func() {
	It("round trips through a file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "nested", "client.yaml")
		Expect(client.WriteConfig(path, "http://analyzer.example:8000")).To(Succeed())

		cfg, err := client.ParseConfigFile(path)
		Expect(err).To(BeNil())
		Expect(cfg.Service.Server).To(Equal("http://analyzer.example:8000"))
	})

	It("falls back to the defaults without a file", func() {
		GinkgoT().Setenv(client.ServerEnvKey, "")

		cfg, err := client.LoadConfig(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
		Expect(err).To(BeNil())
		Expect(cfg.Service.Server).To(Equal(client.DefaultServer))
	})

	It("lets the environment override the server", func() {
		GinkgoT().Setenv(client.ServerEnvKey, "http://other:9000")

		cfg, err := client.LoadConfig("")
		Expect(err).To(BeNil())
		Expect(cfg.Service.Server).To(Equal("http://other:9000"))
	})

	It("rejects a server without a hostname", func() {
		path := filepath.Join(GinkgoT().TempDir(), "client.yaml")
		Expect(os.WriteFile(path, []byte("service:\n  server: /relative\n"), 0o600)).To(Succeed())

		_, err := client.ParseConfigFile(path)
		Expect(err).To(MatchError(ContainSubstring("no hostname")))
	})
})
