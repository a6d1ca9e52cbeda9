package errclass_test

import (
	"errors"
	"io"
	"time"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/errclass"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/transport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
)

var _ = Describe("Tracker", func() {
	var (
		tracker *errclass.Tracker
		now     time.Time
	)

	BeforeEach(func() {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		tracker = errclass.NewTracker(3, logger)
		now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		tracker.SetClock(func() time.Time { return now })
	})

	It("should evict the oldest record when full", func() {
		firstID, _ := tracker.Track(errors.New("one"))
		tracker.Track(errors.New("two"))
		tracker.Track(errors.New("three"))
		tracker.Track(errors.New("four"))

		Expect(tracker.Len()).To(Equal(3))
		Expect(tracker.Resolve(firstID)).To(BeFalse())
		Expect(tracker.Records()[0].Classification.Detail).To(Equal("two"))
	})

	It("should aggregate by type and severity", func() {
		tracker.Track(&transport.NetworkError{Err: errors.New("x")})
		tracker.Track(&transport.NetworkError{Err: errors.New("y")})
		tracker.Track(&transport.HTTPError{StatusCode: 500})

		Expect(tracker.CountByType()).To(Equal(map[errclass.Type]int{
			errclass.TypeNetwork: 2,
			errclass.TypeServer:  1,
		}))
		Expect(tracker.CountBySeverity()[errclass.SeverityHigh]).To(Equal(3))

		typ, ok := tracker.MostFrequentType()
		Expect(ok).To(BeTrue())
		Expect(typ).To(Equal(errclass.TypeNetwork))
	})

	It("should report no most frequent type when empty", func() {
		_, ok := tracker.MostFrequentType()
		Expect(ok).To(BeFalse())
	})

	It("should measure resolution latency", func() {
		id, _ := tracker.Track(errors.New("x"))
		now = now.Add(4 * time.Second)
		Expect(tracker.Resolve(id)).To(BeTrue())
		Expect(tracker.Resolve(id)).To(BeFalse())

		id2, _ := tracker.Track(errors.New("y"))
		now = now.Add(2 * time.Second)
		Expect(tracker.Resolve(id2)).To(BeTrue())

		Expect(tracker.MeanResolutionTime()).To(Equal(3 * time.Second))
	})

	It("should compute the error rate over a window", func() {
		tracker.Track(errors.New("old"))
		now = now.Add(5 * time.Minute)
		tracker.Track(errors.New("new"))
		tracker.Track(errors.New("newer"))

		Expect(tracker.Rate(time.Minute)).To(BeNumerically("==", 2))
		Expect(tracker.Rate(10 * time.Minute)).To(BeNumerically("~", 0.3, 0.001))
		Expect(tracker.Rate(0)).To(BeZero())
	})

	It("should summarise", func() {
		id, _ := tracker.Track(&transport.TimeoutError{})
		tracker.Track(errors.New("x"))
		tracker.Resolve(id)

		s := tracker.Summary()
		Expect(s.Total).To(Equal(2))
		Expect(s.Unresolved).To(Equal(1))
		Expect(s.ByType[errclass.TypeTimeout]).To(Equal(1))
		Expect(tracker.ResolveAll()).To(Equal(1))
	})
})
