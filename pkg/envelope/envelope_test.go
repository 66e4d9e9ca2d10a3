package envelope_test

import (
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loomworksco/loom/pkg/envelope"
)

var _ = Describe("DecodePayload", func() {
	Context("with llmStream payloads", func() {
		It("decodes a content fragment", func() {
			env, err := envelope.DecodePayload(`{"msgType":"llmStream","data":{"content":"Hello"}}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(env.MsgType).To(Equal(envelope.MessageTypeLLMStream))

			text, ok := env.Data.ContentFragment()
			Expect(ok).To(BeTrue())
			Expect(text).To(Equal("Hello"))
		})

		It("decodes a thinking fragment", func() {
			env, err := envelope.DecodePayload(`{"msgType":"llmStream","data":{"content":"hmm","isThinking":true}}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(env.Data.IsThinking).NotTo(BeNil())
			Expect(*env.Data.IsThinking).To(BeTrue())
		})

		It("distinguishes an absent content field from an empty one", func() {
			env, err := envelope.DecodePayload(`{"msgType":"llmStream","data":{"isEnd":true}}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(env.Data.Content).To(BeNil())

			env, err = envelope.DecodePayload(`{"msgType":"llmStream","data":{"content":""}}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(env.Data.Content).NotTo(BeNil())
			Expect(*env.Data.Content).To(BeEmpty())

			_, ok := env.Data.ContentFragment()
			Expect(ok).To(BeFalse())
		})
	})

	Context("with node payloads", func() {
		It("decodes node progress fields", func() {
			payload := `{"msgType":"node","data":{"nodeId":"n-3","nodeType":"llm","status":"running","durationMs":125,"nextNodeIds":["n-4","n-5"]}}`
			env, err := envelope.DecodePayload(payload)
			Expect(err).NotTo(HaveOccurred())
			Expect(env.MsgType).To(Equal(envelope.MessageTypeNode))
			Expect(*env.Data.NodeID).To(Equal("n-3"))
			Expect(*env.Data.NodeType).To(Equal("llm"))
			Expect(*env.Data.Status).To(Equal("running"))
			Expect(*env.Data.DurationMS).To(Equal(int64(125)))
			Expect(env.Data.NextNodeIDs).To(Equal([]string{"n-4", "n-5"}))
		})

		It("decodes a mixed-type result mapping", func() {
			payload := `{"msgType":"node","data":{"result":{"count":3,"score":0.5,"label":"ok","flags":[true,null]}}}`
			env, err := envelope.DecodePayload(payload)
			Expect(err).NotTo(HaveOccurred())
			Expect(env.Data.Result).To(HaveLen(4))
			Expect(env.Data.Result["count"]).To(Equal(envelope.Int(3)))
			Expect(env.Data.Result["score"]).To(Equal(envelope.Float(0.5)))
			Expect(env.Data.Result["label"]).To(Equal(envelope.String("ok")))
			Expect(env.Data.Result["flags"]).To(Equal(envelope.Array(envelope.Bool(true), envelope.Null())))
		})
	})

	Context("with whitespace and empty payloads", func() {
		It("treats an empty payload as no event", func() {
			env, err := envelope.DecodePayload("")
			Expect(err).NotTo(HaveOccurred())
			Expect(env).To(BeNil())
		})

		It("treats a whitespace-only payload as no event", func() {
			env, err := envelope.DecodePayload(" \n\t ")
			Expect(err).NotTo(HaveOccurred())
			Expect(env).To(BeNil())
		})

		It("trims surrounding whitespace before decoding", func() {
			env, err := envelope.DecodePayload("  {\"msgType\":\"flow\",\"data\":{}}\n")
			Expect(err).NotTo(HaveOccurred())
			Expect(env.MsgType).To(Equal(envelope.MessageTypeFlow))
		})
	})

	Context("with invalid payloads", func() {
		It("returns a DecodeError for malformed JSON", func() {
			env, err := envelope.DecodePayload(`{"msgType":"llmSt`)
			Expect(env).To(BeNil())

			var decodeErr *envelope.DecodeError
			Expect(errors.As(err, &decodeErr)).To(BeTrue())
			Expect(decodeErr.Payload).To(Equal(`{"msgType":"llmSt`))
		})

		It("rejects an unknown message type", func() {
			env, err := envelope.DecodePayload(`{"msgType":"telemetry","data":{}}`)
			Expect(env).To(BeNil())
			Expect(err).To(MatchError(ContainSubstring("unknown message type")))
		})

		It("rejects a payload with no msgType tag", func() {
			env, err := envelope.DecodePayload(`{"data":{"content":"hi"}}`)
			Expect(env).To(BeNil())
			Expect(err).To(MatchError(ContainSubstring("missing msgType")))
		})
	})

	Context("round-tripping", func() {
		It("re-encodes to an equal envelope", func() {
			status := "done"
			isEnd := true
			content := "final"
			duration := int64(2048)

			original := &envelope.Envelope{
				MsgType: envelope.MessageTypeNode,
				Data: envelope.EventData{
					Status:     &status,
					IsEnd:      &isEnd,
					Content:    &content,
					DurationMS: &duration,
					Result: map[string]envelope.Value{
						"tokens": envelope.Int(17),
						"ratio":  envelope.Float(1.0),
						"tags":   envelope.Array(envelope.String("a"), envelope.Int(2)),
						"meta":   envelope.Object(map[string]envelope.Value{"deep": envelope.Null()}),
					},
					NextNodeIDs: []string{"n-9"},
				},
			}

			encoded, err := json.Marshal(original)
			Expect(err).NotTo(HaveOccurred())

			decoded, err := envelope.DecodePayload(string(encoded))
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded).To(Equal(original))
		})
	})
})
