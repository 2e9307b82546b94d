package config

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Config", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("when the file overrides a subset of fields", func() {
			BeforeEach(func() {
				content := `
server:
  port: "9000"
query:
  default_row_cap: 500
  absolute_row_cap: 1000
write_database:
  host: "db.internal"
  port: 5432
  database: "argonaut"
readonly_database:
  host: "db-ro.internal"
  port: 5432
  database: "argonaut"
`
				Expect(os.WriteFile(configFile, []byte(content), 0o644)).To(Succeed())
			})

			It("layers the file on top of defaults", func() {
				cfg, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Port).To(Equal("9000"))
				Expect(cfg.Query.DefaultRowCap).To(Equal(500))
				// untouched defaults survive
				Expect(cfg.Orchestrator.MaxRetries).To(Equal(3))
				Expect(cfg.ContextStore.MaxTurns).To(Equal(10))
			})
		})

		Context("when default_row_cap exceeds absolute_row_cap", func() {
			BeforeEach(func() {
				content := `
query:
  default_row_cap: 200000
  absolute_row_cap: 100000
write_database:
  host: "db.internal"
  database: "argonaut"
readonly_database:
  host: "db.internal"
  database: "argonaut"
`
				Expect(os.WriteFile(configFile, []byte(content), 0o644)).To(Succeed())
			})

			It("fails validation", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("exceeds"))
			})
		})

		Context("when the file does not exist", func() {
			It("returns an error", func() {
				_, err := Load(filepath.Join(tempDir, "missing.yaml"))
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("DatabaseConfig", func() {
		It("has sensible defaults", func() {
			dbCfg := DefaultDatabaseConfig()
			Expect(dbCfg.Host).To(Equal("localhost"))
			Expect(dbCfg.Port).To(Equal(5432))
			Expect(dbCfg.MaxOpenConns).To(Equal(25))
		})

		It("loads overrides from the environment", func() {
			os.Setenv("TESTDB_HOST", "envhost")
			os.Setenv("TESTDB_PORT", "6543")
			defer os.Unsetenv("TESTDB_HOST")
			defer os.Unsetenv("TESTDB_PORT")

			dbCfg := DefaultDatabaseConfig()
			dbCfg.LoadFromEnv("TESTDB")

			Expect(dbCfg.Host).To(Equal("envhost"))
			Expect(dbCfg.Port).To(Equal(6543))
		})

		It("keeps the prior port on an unparsable override", func() {
			os.Setenv("TESTDB_PORT", "not-a-port")
			defer os.Unsetenv("TESTDB_PORT")

			dbCfg := DefaultDatabaseConfig()
			original := dbCfg.Port
			dbCfg.LoadFromEnv("TESTDB")

			Expect(dbCfg.Port).To(Equal(original))
		})
	})

	Describe("DefaultOutlierBounds", func() {
		It("matches the bounds table in the spec", func() {
			bounds := DefaultOutlierBounds()
			Expect(bounds.TemperatureMin).To(Equal(-2.5))
			Expect(bounds.TemperatureMax).To(Equal(40.0))
			Expect(bounds.PressureMin).To(Equal(0.0))
			Expect(bounds.PressureMax).To(Equal(12000.0))
			Expect(bounds.PHMin).To(Equal(7.0))
			Expect(bounds.PHMax).To(Equal(8.5))
		})
	})
})
