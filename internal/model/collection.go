package model

// JobCollection is the ordered set of known jobs, newest first, keyed by id.
// It is not safe for concurrent use; its owner serializes access.
type JobCollection struct {
	order []string
	byID  map[string]Job
}

func NewJobCollection(jobs ...Job) *JobCollection {
	c := &JobCollection{byID: make(map[string]Job, len(jobs))}
	for i := len(jobs) - 1; i >= 0; i-- {
		c.Upsert(jobs[i])
	}
	return c
}

// Upsert replaces the job with the same id in place, or prepends it when the
// id is new. Applying the same snapshot twice leaves the collection unchanged.
func (c *JobCollection) Upsert(job Job) {
	if c.byID == nil {
		c.byID = make(map[string]Job)
	}
	if _, ok := c.byID[job.ID]; !ok {
		c.order = append([]string{job.ID}, c.order...)
	}
	c.byID[job.ID] = job.Clone()
}

func (c *JobCollection) Get(id string) (Job, bool) {
	job, ok := c.byID[id]
	if !ok {
		return Job{}, false
	}
	return job.Clone(), true
}

func (c *JobCollection) Len() int {
	return len(c.order)
}

// Jobs returns a copy of the collection in display order.
func (c *JobCollection) Jobs() []Job {
	out := make([]Job, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id].Clone())
	}
	return out
}

// Replace resets the collection to jobs, keeping their order.
func (c *JobCollection) Replace(jobs []Job) {
	c.order = c.order[:0]
	c.byID = make(map[string]Job, len(jobs))
	for _, job := range jobs {
		if _, dup := c.byID[job.ID]; dup {
			continue
		}
		c.order = append(c.order, job.ID)
		c.byID[job.ID] = job.Clone()
	}
}
