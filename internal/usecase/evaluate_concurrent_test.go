package usecase_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miporis/compliance-evaluator/internal/domain"
	"github.com/miporis/compliance-evaluator/internal/service/keylock"
	"github.com/miporis/compliance-evaluator/internal/usecase"
)

// slowJudge scores by the file it sees in the prompt and tracks how many
// calls overlap.
type slowJudge struct {
	scores   map[string]int
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	prompts  chan string
}

func (j *slowJudge) Judge(_ context.Context, prompt string) (domain.Verdict, error) {
	n := j.inFlight.Add(1)
	defer j.inFlight.Add(-1)
	for {
		cur := j.maxSeen.Load()
		if n <= cur || j.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	j.prompts <- prompt
	time.Sleep(30 * time.Millisecond)
	for name, score := range j.scores {
		if strings.Contains(prompt, "content of "+name) {
			return domain.Verdict{Result: domain.FromScore(score), Score: score, Remarks: "judged " + name}, nil
		}
	}
	return domain.Verdict{Result: domain.LabelNonCompliant, Score: 0, Remarks: "nothing"}, nil
}

func TestEvaluate_ConcurrentSubmissionsStayMonotonic(t *testing.T) {
	t.Parallel()
	store := newMemState(seedRecord(60))
	judge := &slowJudge{
		scores:  map[string]int{"high.pdf": 80, "low.pdf": 65},
		prompts: make(chan string, 2),
	}
	svc := newService(store, judge, textExtractor())
	svc.Locks = keylock.NewLocalLocker(5 * time.Second)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, name := range []string{"high.pdf", "low.pdf"} {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			_, errs[i] = svc.Evaluate(context.Background(), usecase.EvaluateInput{
				ControlID: testKey.ControlID, UserID: testKey.UserID, ControlType: "ITGC",
				Files: []domain.UploadFile{pdf(name)},
			})
		}(i, name)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	assert.EqualValues(t, 1, judge.maxSeen.Load(), "judge calls for one control never overlap")

	rec := store.record(testKey)
	assert.GreaterOrEqual(t, rec.Score, 80)
	assert.GreaterOrEqual(t, rec.Score, 65)
	assert.Equal(t, domain.FromScore(rec.Score), rec.Result)
	require.Len(t, rec.UploadHistory, 2)
	assert.LessOrEqual(t, rec.UploadHistory[0].Score, rec.UploadHistory[1].Score)

	// The second prompt was composed after the first commit.
	<-judge.prompts
	second := <-judge.prompts
	assert.Contains(t, second, "This control has 1 prior evaluation(s)")
}
