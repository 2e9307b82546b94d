package database

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/argoplatform/argonaut/internal/config"
)

func TestDatabase(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Database Suite")
}

var _ = Describe("Open", func() {
	It("fails fast when the write pool host is unreachable", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		badCfg := *config.DefaultDatabaseConfig()
		badCfg.Host = "127.0.0.1"
		badCfg.Port = 1 // nothing listens here
		badCfg.Database = "argonaut"

		pools, err := Open(ctx, badCfg, badCfg)
		Expect(err).To(HaveOccurred())
		Expect(pools).To(BeNil())
	})

	It("fails on an unparsable DSN", func() {
		ctx := context.Background()
		badCfg := *config.DefaultDatabaseConfig()
		badCfg.Host = "" // produces a DSN pgx rejects outright when combined with a bogus sslmode
		badCfg.SSLMode = "not-a-real-mode"

		_, err := Open(ctx, badCfg, badCfg)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Pools.Close", func() {
	It("is a safe no-op on a nil receiver", func() {
		var pools *Pools
		Expect(func() { pools.Close() }).NotTo(Panic())
	})

	It("is a safe no-op on a zero-value Pools", func() {
		pools := &Pools{}
		Expect(func() { pools.Close() }).NotTo(Panic())
	})
})
