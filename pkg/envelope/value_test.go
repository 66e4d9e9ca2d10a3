package envelope_test

import (
	"encoding/json"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loomworksco/loom/pkg/envelope"
)

// roundTrip encodes v and decodes the result back into a Value.
func roundTrip(v envelope.Value) envelope.Value {
	encoded, err := json.Marshal(v)
	Expect(err).NotTo(HaveOccurred())

	var decoded envelope.Value
	Expect(json.Unmarshal(encoded, &decoded)).To(Succeed())
	return decoded
}

var _ = Describe("Value", func() {
	Describe("decoding", func() {
		It("decodes null", func() {
			var v envelope.Value
			Expect(json.Unmarshal([]byte(`null`), &v)).To(Succeed())
			Expect(v.Kind()).To(Equal(envelope.KindNull))
		})

		It("decodes booleans before numbers", func() {
			var v envelope.Value
			Expect(json.Unmarshal([]byte(`true`), &v)).To(Succeed())
			Expect(v.Kind()).To(Equal(envelope.KindBool))
			Expect(v.AsBool()).To(BeTrue())
		})

		It("decodes integer literals as int", func() {
			var v envelope.Value
			Expect(json.Unmarshal([]byte(`42`), &v)).To(Succeed())
			Expect(v.Kind()).To(Equal(envelope.KindInt))
			Expect(v.AsInt()).To(Equal(int64(42)))
		})

		It("decodes fractional literals as float", func() {
			var v envelope.Value
			Expect(json.Unmarshal([]byte(`1.0`), &v)).To(Succeed())
			Expect(v.Kind()).To(Equal(envelope.KindFloat))
			Expect(v.AsFloat()).To(Equal(1.0))
		})

		It("decodes exponent literals as float", func() {
			var v envelope.Value
			Expect(json.Unmarshal([]byte(`1e3`), &v)).To(Succeed())
			Expect(v.Kind()).To(Equal(envelope.KindFloat))
			Expect(v.AsFloat()).To(Equal(1000.0))
		})

		It("decodes integers too large for int64 as float", func() {
			var v envelope.Value
			Expect(json.Unmarshal([]byte(`18446744073709551615`), &v)).To(Succeed())
			Expect(v.Kind()).To(Equal(envelope.KindFloat))
		})

		It("decodes strings", func() {
			var v envelope.Value
			Expect(json.Unmarshal([]byte(`"hi"`), &v)).To(Succeed())
			Expect(v).To(Equal(envelope.String("hi")))
		})

		It("decodes nested arrays and objects", func() {
			var v envelope.Value
			Expect(json.Unmarshal([]byte(`{"a":[1,2.5,"x"],"b":{"c":null}}`), &v)).To(Succeed())
			Expect(v.Kind()).To(Equal(envelope.KindObject))
			Expect(v.Fields()["a"]).To(Equal(envelope.Array(envelope.Int(1), envelope.Float(2.5), envelope.String("x"))))
			Expect(v.Fields()["b"]).To(Equal(envelope.Object(map[string]envelope.Value{"c": envelope.Null()})))
		})
	})

	Describe("round-tripping", func() {
		It("round-trips every scalar arm", func() {
			for _, v := range []envelope.Value{
				envelope.Null(),
				envelope.Bool(false),
				envelope.Bool(true),
				envelope.Int(0),
				envelope.Int(-7),
				envelope.Int(math.MaxInt64),
				envelope.Float(0.25),
				envelope.Float(-3.5),
				envelope.String(""),
				envelope.String("héllo ⌘"),
			} {
				Expect(roundTrip(v)).To(Equal(v))
			}
		})

		It("keeps whole-number floats distinct from ints", func() {
			v := envelope.Float(1.0)
			Expect(roundTrip(v)).To(Equal(v))
			Expect(roundTrip(v).Kind()).To(Equal(envelope.KindFloat))
		})

		It("round-trips empty containers", func() {
			Expect(roundTrip(envelope.Array())).To(Equal(envelope.Array()))
			Expect(roundTrip(envelope.Object(nil))).To(Equal(envelope.Object(nil)))
		})

		It("round-trips a deeply mixed structure", func() {
			v := envelope.Object(map[string]envelope.Value{
				"list": envelope.Array(
					envelope.Int(1),
					envelope.Float(2.0),
					envelope.String("three"),
					envelope.Array(envelope.Bool(true)),
				),
				"nested": envelope.Object(map[string]envelope.Value{
					"empty": envelope.Array(),
					"none":  envelope.Null(),
				}),
			})
			Expect(roundTrip(v)).To(Equal(v))
		})
	})

	Describe("encoding", func() {
		It("rejects non-finite floats", func() {
			_, err := json.Marshal(envelope.Float(math.NaN()))
			Expect(err).To(HaveOccurred())
		})
	})
})
