package runtime

import (
	"fmt"
	"time"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/pkg/spinner"
)

// Waits returns the default polling options with progress shown as a
// spinner on Out. Call done once polling is over to restore the cursor.
func (c *Context) Waits() (data cvat.DataWait, requests cvat.RequestWait, done func()) {
	s := spinner.NewSpinner(c.Out)

	data = cvat.DefaultDataWait()
	data.OnProgress = func(p cvat.DataProgress) {
		s.Update(fmt.Sprintf("loading data %d/%d (%d%%), %s elapsed",
			p.Size, p.Expected, p.Percent(), p.Elapsed.Round(time.Second)))
	}

	requests = cvat.DefaultRequestWait()
	requests.OnProgress = func(rq cvat.Request) {
		s.Update(fmt.Sprintf("%s %s %.0f%%", rq.Operation.Type, rq.Status, rq.Progress*100))
	}
	return data, requests, s.Cleanup
}
