package vector_test

import (
	"context"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	sharedmath "github.com/argoplatform/argonaut/pkg/shared/math"
	"github.com/argoplatform/argonaut/pkg/storage/vector"
)

func TestVector(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Vector Storage Suite")
}

var _ = Describe("LocalEmbeddingService", func() {
	var (
		service *vector.LocalEmbeddingService
		logger  *logrus.Logger
		ctx     context.Context
	)

	BeforeEach(func() {
		logger = logrus.New()
		logger.SetLevel(logrus.FatalLevel)
		ctx = context.Background()
	})

	Describe("NewLocalEmbeddingService", func() {
		Context("when creating with valid dimension", func() {
			It("should create service with specified dimension", func() {
				service = vector.NewLocalEmbeddingService(512, logger)

				Expect(service).NotTo(BeNil())
				Expect(service.GetEmbeddingDimension()).To(Equal(512))
			})
		})

		Context("when creating with zero dimension", func() {
			It("should use default dimension", func() {
				service = vector.NewLocalEmbeddingService(0, logger)

				Expect(service).NotTo(BeNil())
				Expect(service.GetEmbeddingDimension()).To(Equal(384))
			})
		})

		Context("when creating with negative dimension", func() {
			It("should use default dimension", func() {
				service = vector.NewLocalEmbeddingService(-100, logger)

				Expect(service.GetEmbeddingDimension()).To(Equal(384))
			})
		})

		Context("when creating with nil logger", func() {
			It("should handle nil logger gracefully", func() {
				service = vector.NewLocalEmbeddingService(384, nil)

				Expect(service).NotTo(BeNil())
			})
		})
	})

	Describe("GenerateTextEmbedding", func() {
		BeforeEach(func() {
			service = vector.NewLocalEmbeddingService(384, logger)
		})

		Context("when generating embedding for valid text", func() {
			It("should generate normalized embeddings", func() {
				embedding, err := service.GenerateTextEmbedding(ctx, "float platform 5904471 recorded a temperature profile")

				Expect(err).NotTo(HaveOccurred())
				Expect(embedding).To(HaveLen(384))

				var sumSquares float64
				for _, val := range embedding {
					sumSquares += val * val
				}
				Expect(sumSquares).To(BeNumerically("~", 1.0, 0.01))
			})

			It("should generate different embeddings for different texts", func() {
				embedding1, err1 := service.GenerateTextEmbedding(ctx, "surface temperature anomaly")
				embedding2, err2 := service.GenerateTextEmbedding(ctx, "deep chlorophyll maximum")

				Expect(err1).NotTo(HaveOccurred())
				Expect(err2).NotTo(HaveOccurred())

				different := false
				for i := range embedding1 {
					if embedding1[i] != embedding2[i] {
						different = true
						break
					}
				}
				Expect(different).To(BeTrue())
			})

			It("should generate consistent embeddings for same text", func() {
				text := "Pacific basin BGC float cycle 42"

				embedding1, err1 := service.GenerateTextEmbedding(ctx, text)
				embedding2, err2 := service.GenerateTextEmbedding(ctx, text)

				Expect(err1).NotTo(HaveOccurred())
				Expect(err2).NotTo(HaveOccurred())
				Expect(embedding1).To(Equal(embedding2))
			})
		})

		Context("when generating embedding for empty text", func() {
			It("should return zero embedding", func() {
				embedding, err := service.GenerateTextEmbedding(ctx, "")

				Expect(err).NotTo(HaveOccurred())
				Expect(embedding).To(HaveLen(384))
				for _, val := range embedding {
					Expect(val).To(Equal(0.0))
				}
			})
		})

		Context("when generating embedding for very long text", func() {
			It("should handle long text efficiently", func() {
				longText := strings.Repeat("argo float profile measurement depth pressure salinity ", 100)

				embedding, err := service.GenerateTextEmbedding(ctx, longText)

				Expect(err).NotTo(HaveOccurred())
				Expect(embedding).To(HaveLen(384))
			})
		})
	})

	Describe("GenerateFieldsEmbedding", func() {
		BeforeEach(func() {
			service = vector.NewLocalEmbeddingService(384, logger)
		})

		Context("when generating embedding for a dataset with summary fields", func() {
			It("should include kind and field values", func() {
				fields := map[string]interface{}{
					"region":          "South Pacific",
					"profile_count":   128,
					"has_bgc":         true,
					"mean_depth":      1500.5,
					"variable_list":   []string{"TEMP", "PSAL"}, // ignored
				}

				embedding, err := service.GenerateFieldsEmbedding(ctx, "dataset", fields)

				Expect(err).NotTo(HaveOccurred())
				Expect(embedding).To(HaveLen(384))

				var sumSquares float64
				for _, val := range embedding {
					sumSquares += val * val
				}
				Expect(sumSquares).To(BeNumerically("~", 1.0, 0.01))
			})
		})

		Context("when generating embedding with empty fields", func() {
			It("should use only the kind", func() {
				embedding, err := service.GenerateFieldsEmbedding(ctx, "dataset", map[string]interface{}{})

				Expect(err).NotTo(HaveOccurred())
				Expect(embedding).To(HaveLen(384))
			})
		})

		Context("when generating embedding with nil fields", func() {
			It("should handle nil fields gracefully", func() {
				embedding, err := service.GenerateFieldsEmbedding(ctx, "float", nil)

				Expect(err).NotTo(HaveOccurred())
				Expect(embedding).To(HaveLen(384))
			})
		})
	})

	Describe("GenerateLabelsEmbedding", func() {
		BeforeEach(func() {
			service = vector.NewLocalEmbeddingService(384, logger)
		})

		Context("when generating embedding for region labels and metadata", func() {
			It("should include both labels and metadata", func() {
				labels := map[string]string{
					"basin": "pacific",
					"mode":  "delayed",
				}
				metadata := map[string]interface{}{
					"profile_count": 42,
					"active":        true,
				}

				embedding, err := service.GenerateLabelsEmbedding(ctx, labels, metadata)

				Expect(err).NotTo(HaveOccurred())
				Expect(embedding).To(HaveLen(384))

				var sumSquares float64
				for _, val := range embedding {
					sumSquares += val * val
				}
				Expect(sumSquares).To(BeNumerically("~", 1.0, 0.01))
			})
		})

		Context("when generating embedding with empty labels and metadata", func() {
			It("should return zero embedding", func() {
				embedding, err := service.GenerateLabelsEmbedding(ctx, map[string]string{}, map[string]interface{}{})

				Expect(err).NotTo(HaveOccurred())
				for _, val := range embedding {
					Expect(val).To(Equal(0.0))
				}
			})
		})

		Context("when generating embedding with nil parameters", func() {
			It("should handle nil parameters gracefully", func() {
				embedding, err := service.GenerateLabelsEmbedding(ctx, nil, nil)

				Expect(err).NotTo(HaveOccurred())
				Expect(embedding).To(HaveLen(384))
			})
		})
	})

	Describe("CombineEmbeddings", func() {
		BeforeEach(func() {
			service = vector.NewLocalEmbeddingService(384, logger)
		})

		Context("when combining multiple embeddings", func() {
			It("should return a normalized average", func() {
				embedding1 := make([]float64, 384)
				embedding2 := make([]float64, 384)
				embedding3 := make([]float64, 384)
				for i := 0; i < 384; i++ {
					embedding1[i] = 1.0
					embedding2[i] = 2.0
					embedding3[i] = 3.0
				}

				combined := service.CombineEmbeddings(embedding1, embedding2, embedding3)

				Expect(combined).To(HaveLen(384))
				var sumSquares float64
				for _, val := range combined {
					sumSquares += val * val
				}
				Expect(sumSquares).To(BeNumerically("~", 1.0, 0.01))
			})
		})

		Context("when combining a single embedding", func() {
			It("should return the same embedding", func() {
				embedding := make([]float64, 384)
				for i := 0; i < 384; i++ {
					embedding[i] = float64(i) / 384.0
				}

				combined := service.CombineEmbeddings(embedding)

				Expect(combined).To(Equal(embedding))
			})
		})

		Context("when combining no embeddings", func() {
			It("should return zero embedding", func() {
				combined := service.CombineEmbeddings()

				Expect(combined).To(HaveLen(384))
				for _, val := range combined {
					Expect(val).To(Equal(0.0))
				}
			})
		})

		Context("when combining embeddings with a dimension mismatch", func() {
			It("should skip mismatched embeddings", func() {
				embedding1 := make([]float64, 384)
				embedding2 := make([]float64, 256)
				embedding3 := make([]float64, 384)
				for i := 0; i < 384; i++ {
					embedding1[i] = 1.0
					embedding3[i] = 3.0
				}
				for i := 0; i < 256; i++ {
					embedding2[i] = 2.0
				}

				combined := service.CombineEmbeddings(embedding1, embedding2, embedding3)

				Expect(combined).To(HaveLen(384))
			})
		})
	})

	Describe("Semantic Grouping", func() {
		BeforeEach(func() {
			service = vector.NewLocalEmbeddingService(384, logger)
		})

		Context("when processing oceanographic terms", func() {
			It("should distinguish unrelated descriptive text", func() {
				texts := []string{
					"surface temperature anomaly pacific",
					"deep chlorophyll maximum layer",
					"dissolved oxygen minimum zone",
				}

				var embeddings [][]float64
				for _, text := range texts {
					embedding, err := service.GenerateTextEmbedding(ctx, text)
					Expect(err).NotTo(HaveOccurred())
					embeddings = append(embeddings, embedding)
				}

				for i := 0; i < len(embeddings); i++ {
					for j := i + 1; j < len(embeddings); j++ {
						similarity := sharedmath.CosineSimilarity(embeddings[i], embeddings[j])
						Expect(similarity).To(BeNumerically("<", 0.9))
					}
				}
			})
		})
	})
})

var _ = Describe("HybridEmbeddingService", func() {
	var (
		localService  *vector.LocalEmbeddingService
		hybridService *vector.HybridEmbeddingService
		logger        *logrus.Logger
		ctx           context.Context
	)

	BeforeEach(func() {
		logger = logrus.New()
		logger.SetLevel(logrus.FatalLevel)
		ctx = context.Background()
		localService = vector.NewLocalEmbeddingService(384, logger)
	})

	Describe("NewHybridEmbeddingService", func() {
		Context("when creating with local service only", func() {
			It("should create hybrid service", func() {
				hybridService = vector.NewHybridEmbeddingService(localService, nil, logger)

				Expect(hybridService).NotTo(BeNil())
				Expect(hybridService.GetEmbeddingDimension()).To(Equal(384))
			})
		})

		Context("when creating with nil parameters", func() {
			It("should handle nil parameters gracefully", func() {
				hybridService = vector.NewHybridEmbeddingService(nil, nil, nil)

				Expect(hybridService).NotTo(BeNil())
			})
		})
	})

	Describe("SetUseLocal", func() {
		BeforeEach(func() {
			hybridService = vector.NewHybridEmbeddingService(localService, nil, logger)
		})

		It("should control service selection and fall back to local when no external is set", func() {
			hybridService.SetUseLocal(true)
			embedding1, err1 := hybridService.GenerateTextEmbedding(ctx, "test text")
			Expect(err1).NotTo(HaveOccurred())

			hybridService.SetUseLocal(false)
			embedding2, err2 := hybridService.GenerateTextEmbedding(ctx, "test text")
			Expect(err2).NotTo(HaveOccurred())
			Expect(embedding2).To(Equal(embedding1))
		})
	})

	Describe("Delegation", func() {
		BeforeEach(func() {
			hybridService = vector.NewHybridEmbeddingService(localService, nil, logger)
		})

		It("delegates GenerateFieldsEmbedding to the active service", func() {
			embedding, err := hybridService.GenerateFieldsEmbedding(ctx, "dataset", map[string]interface{}{"region": "atlantic"})

			Expect(err).NotTo(HaveOccurred())
			Expect(embedding).To(HaveLen(384))
		})

		It("delegates GenerateLabelsEmbedding to the active service", func() {
			embedding, err := hybridService.GenerateLabelsEmbedding(ctx, map[string]string{"basin": "atlantic"}, map[string]interface{}{"active": true})

			Expect(err).NotTo(HaveOccurred())
			Expect(embedding).To(HaveLen(384))
		})

		It("delegates CombineEmbeddings to the active service", func() {
			e1 := make([]float64, 384)
			e2 := make([]float64, 384)
			combined := hybridService.CombineEmbeddings(e1, e2)

			Expect(combined).To(HaveLen(384))
		})
	})
})
