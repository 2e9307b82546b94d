package metrics

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

var _ = Describe("Metrics", func() {
	Describe("RecordJob", func() {
		It("should increment jobs processed counter", func() {
			initial := testutil.ToFloat64(JobsProcessedTotal)

			RecordJob()

			after := testutil.ToFloat64(JobsProcessedTotal)
			Expect(after).To(Equal(initial + 1.0))
		})
	})

	Describe("RecordStage", func() {
		It("should increment the stage counter and observe its duration", func() {
			stage := "test_parse"
			initial := testutil.ToFloat64(StagesExecutedTotal.WithLabelValues(stage))

			RecordStage(stage, 50*time.Millisecond)

			after := testutil.ToFloat64(StagesExecutedTotal.WithLabelValues(stage))
			Expect(after).To(Equal(initial + 1.0))

			metric := &dto.Metric{}
			err := StageDuration.WithLabelValues(stage).(prometheus.Histogram).Write(metric)
			Expect(err).NotTo(HaveOccurred())
			Expect(metric.GetHistogram().GetSampleCount()).To(BeNumerically(">", 0))
		})
	})

	Describe("RecordLLMCallDuration", func() {
		It("should add a sample to the LLM call duration histogram", func() {
			RecordLLMCallDuration(25 * time.Millisecond)

			metric := &dto.Metric{}
			err := LLMCallDuration.Write(metric)
			Expect(err).NotTo(HaveOccurred())
			Expect(metric.GetHistogram().GetSampleCount()).To(BeNumerically(">", 0))
		})
	})

	Describe("RecordRejectedProfile", func() {
		It("should increment the rejected profiles counter for the given reason", func() {
			reason := "test_temperature_out_of_range"
			initial := testutil.ToFloat64(ProfilesRejectedTotal.WithLabelValues(reason))

			RecordRejectedProfile(reason)

			after := testutil.ToFloat64(ProfilesRejectedTotal.WithLabelValues(reason))
			Expect(after).To(Equal(initial + 1.0))
		})
	})

	Describe("RecordStageError", func() {
		It("should increment the stage error counter", func() {
			stage, errType := "test_write", "transient"
			initial := testutil.ToFloat64(StageErrorsTotal.WithLabelValues(stage, errType))

			RecordStageError(stage, errType)

			after := testutil.ToFloat64(StageErrorsTotal.WithLabelValues(stage, errType))
			Expect(after).To(Equal(initial + 1.0))
		})
	})

	Describe("RecordLLMCall", func() {
		It("should increment the LLM calls counter for the provider", func() {
			provider := "test_anthropic"
			initial := testutil.ToFloat64(LLMCallsTotal.WithLabelValues(provider))

			RecordLLMCall(provider)

			after := testutil.ToFloat64(LLMCallsTotal.WithLabelValues(provider))
			Expect(after).To(Equal(initial + 1.0))
		})
	})

	Describe("RecordLLMCallError", func() {
		It("should increment the LLM call errors counter", func() {
			provider, errType := "test_bedrock", "rate_limited"
			initial := testutil.ToFloat64(LLMCallErrorsTotal.WithLabelValues(provider, errType))

			RecordLLMCallError(provider, errType)

			after := testutil.ToFloat64(LLMCallErrorsTotal.WithLabelValues(provider, errType))
			Expect(after).To(Equal(initial + 1.0))
		})
	})

	Describe("RecordQueryRequest", func() {
		It("should increment the query requests counter for the outcome", func() {
			initial := testutil.ToFloat64(QueryRequestsTotal.WithLabelValues("test_success"))

			RecordQueryRequest("test_success")

			after := testutil.ToFloat64(QueryRequestsTotal.WithLabelValues("test_success"))
			Expect(after).To(Equal(initial + 1.0))
		})
	})

	Describe("Timer", func() {
		It("should report elapsed time since creation", func() {
			timer := NewTimer()

			Expect(timer).ToNot(BeNil())

			time.Sleep(10 * time.Millisecond)

			elapsed := timer.Elapsed()
			Expect(elapsed).To(BeNumerically(">=", 10*time.Millisecond))
			Expect(elapsed).To(BeNumerically("<", 200*time.Millisecond))
		})

		It("should record a pipeline stage with the timer", func() {
			stage := "test_timer_stage"
			timer := NewTimer()
			initial := testutil.ToFloat64(StagesExecutedTotal.WithLabelValues(stage))

			time.Sleep(5 * time.Millisecond)
			timer.RecordStage(stage)

			after := testutil.ToFloat64(StagesExecutedTotal.WithLabelValues(stage))
			Expect(after).To(Equal(initial + 1.0))
		})

		It("should record an LLM call with the timer", func() {
			timer := NewTimer()

			time.Sleep(5 * time.Millisecond)
			timer.RecordLLMCall()

			metric := &dto.Metric{}
			err := LLMCallDuration.Write(metric)
			Expect(err).NotTo(HaveOccurred())
			Expect(metric.GetHistogram().GetSampleCount()).To(BeNumerically(">", 0))
		})
	})

	Describe("Multiple stages", func() {
		It("should record each stage independently", func() {
			stages := []string{"test_scale_parse", "test_scale_clean", "test_scale_index"}

			initialValues := make(map[string]float64)
			for _, stage := range stages {
				initialValues[stage] = testutil.ToFloat64(StagesExecutedTotal.WithLabelValues(stage))
			}

			for _, stage := range stages {
				RecordStage(stage, 100*time.Millisecond)
			}

			for _, stage := range stages {
				finalValue := testutil.ToFloat64(StagesExecutedTotal.WithLabelValues(stage))
				Expect(finalValue).To(Equal(initialValues[stage]+1.0), "stage %s should have increased by 1", stage)
			}
		})
	})

	Describe("Metrics integration", func() {
		It("should handle a full job lifecycle's metrics correctly", func() {
			stage := "test_integration_write"
			provider := "test_integration_anthropic"

			initialJobs := testutil.ToFloat64(JobsProcessedTotal)
			initialStage := testutil.ToFloat64(StagesExecutedTotal.WithLabelValues(stage))
			initialLLMCalls := testutil.ToFloat64(LLMCallsTotal.WithLabelValues(provider))

			RecordJob()
			RecordStage(stage, 200*time.Millisecond)
			RecordLLMCall(provider)
			RecordLLMCallDuration(500 * time.Millisecond)
			RecordQueryRequest("test_success")

			Expect(testutil.ToFloat64(JobsProcessedTotal)).To(Equal(initialJobs + 1.0))
			Expect(testutil.ToFloat64(StagesExecutedTotal.WithLabelValues(stage))).To(Equal(initialStage + 1.0))
			Expect(testutil.ToFloat64(LLMCallsTotal.WithLabelValues(provider))).To(Equal(initialLLMCalls + 1.0))
		})
	})
})
