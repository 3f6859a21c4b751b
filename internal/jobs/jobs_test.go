package jobs

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

const sampleReport = `{'q1': [{'jobID': '42', 'RunningDir': '/a', 'Script file': 's.sh', 'Status': 'R', 'Time': '1:00', 'Comment': 'x'}]}`

const multiGroupReport = `{
 'running': [
  {'jobID': '101', 'RunningDir': '/scratch/u/md1', 'Script file': 'run.sh', 'Status': 'R', 'Time': '2:03:11', 'Comment': 'equilibration'},
  {'jobID': '102', 'RunningDir': '/scratch/u/md2', 'Script file': 'run.sh', 'Status': 'R', 'Time': '0:10:00', 'Comment': 'production'}
 ],
 'finished': [
  {'jobID': '99', 'RunningDir': '/scratch/u/old', 'Script file': 'dock.sh', 'Status': 'CD', 'Time': '5:00:00', 'Comment': ''}
 ],
 'alpha': []
}`

func TestParseSingleQuotedReport(t *testing.T) {
	snap, err := Parse(sampleReport)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if snap.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", snap.Len())
	}
	want := Job{JobID: "42", RunningDir: "/a", ScriptFile: "s.sh", Status: "R", Time: "1:00", Comment: "x"}
	if got := snap.Groups[0].Jobs[0]; got != want {
		t.Errorf("job = %+v, want %+v", got, want)
	}
	if snap.Groups[0].Key != "q1" {
		t.Errorf("group key = %q, want q1", snap.Groups[0].Key)
	}
}

func TestParsePreservesGroupOrder(t *testing.T) {
	snap, err := Parse(multiGroupReport)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var keys []string
	for _, g := range snap.Groups {
		keys = append(keys, g.Key)
	}
	if !reflect.DeepEqual(keys, []string{"running", "finished", "alpha"}) {
		t.Errorf("group keys = %v", keys)
	}
	if snap.Len() != 3 {
		t.Errorf("Len() = %d, want 3", snap.Len())
	}
}

func TestParseNumericFields(t *testing.T) {
	snap, err := Parse(`{'q': [{'jobID': 4711, 'RunningDir': '/x', 'Script file': 'a.sh', 'Status': 'PD', 'Time': 0, 'Comment': null}]}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	j := snap.Groups[0].Jobs[0]
	if j.JobID != "4711" || j.Time != "0" || j.Comment != "" {
		t.Errorf("job = %+v", j)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"truncated", `{'q1': [{'jobID': '42'`},
		{"not an object", `['a', 'b']`},
		{"group not a list", `{'q1': 'oops'}`},
		{"trailing garbage", `{'q1': []} extra`},
		{"python traceback", "Traceback (most recent call last):\n  File ..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Errorf("Parse(%q) error = %v, want *ParseError", tt.raw, err)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	snap, err := Parse(multiGroupReport)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		substr string
		want   []string
	}{
		{"empty returns all in order", "", []string{"101", "102", "99"}},
		{"matches job id", "10", []string{"101", "102"}},
		{"matches running dir", "/old", []string{"99"}},
		{"matches script file", "dock", []string{"99"}},
		{"matches comment", "production", []string{"102"}},
		{"status is excluded", "CD", nil},
		{"time is excluded", "5:00:00", nil},
		{"case sensitive", "Production", nil},
		{"spans fields", "101/scratch", []string{"101"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for _, e := range Filter(snap, tt.substr) {
				ids = append(ids, e.Job.JobID)
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("Filter(%q) = %v, want %v", tt.substr, ids, tt.want)
			}
		})
	}
}

func TestFilterKeepsGroupKey(t *testing.T) {
	snap, _ := Parse(multiGroupReport)
	entries := Filter(snap, "99")
	if len(entries) != 1 || entries[0].Group != "finished" {
		t.Errorf("Filter entries = %+v", entries)
	}
}

// regroup rebuilds a snapshot from flattened entries
func regroup(entries []Entry) *Snapshot {
	snap := &Snapshot{}
	for _, e := range entries {
		n := len(snap.Groups)
		if n == 0 || snap.Groups[n-1].Key != e.Group {
			snap.Groups = append(snap.Groups, Group{Key: e.Group})
			n++
		}
		snap.Groups[n-1].Jobs = append(snap.Groups[n-1].Jobs, e.Job)
	}
	return snap
}

func TestFilterIdempotent(t *testing.T) {
	snap, _ := Parse(multiGroupReport)
	for _, substr := range []string{"", "run", "scratch", "nothing"} {
		t.Run(substr, func(t *testing.T) {
			once := Filter(snap, substr)
			twice := Filter(regroup(once), substr)
			if !reflect.DeepEqual(once, twice) {
				t.Errorf("filter %q not idempotent: %v vs %v", substr, once, twice)
			}
		})
	}
}

func TestStoreRefreshKeepsPreviousOnError(t *testing.T) {
	store := NewStore()
	if _, err := store.Refresh(multiGroupReport); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := store.Refresh("garbage"); err == nil {
		t.Fatal("Refresh(garbage) should fail")
	}
	if got := store.Snapshot().Len(); got != 3 {
		t.Errorf("snapshot Len() = %d after failed refresh, want 3", got)
	}

	// A successful refresh replaces the snapshot wholesale
	if _, err := store.Refresh(sampleReport); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := store.Snapshot().Len(); got != 1 {
		t.Errorf("snapshot Len() = %d, want 1", got)
	}
	if _, ok := store.Find("101"); ok {
		t.Error("old job still present after refresh")
	}
}

func TestStoreRemove(t *testing.T) {
	store := NewStore()
	if _, err := store.Refresh(multiGroupReport); err != nil {
		t.Fatal(err)
	}
	if n := store.Remove("102"); n != 1 {
		t.Errorf("Remove(102) = %d, want 1", n)
	}
	if n := store.Remove("nope"); n != 0 {
		t.Errorf("Remove(nope) = %d, want 0", n)
	}
	var ids []string
	for _, e := range store.Filter("") {
		ids = append(ids, e.Job.JobID)
	}
	if !reflect.DeepEqual(ids, []string{"101", "99"}) {
		t.Errorf("remaining = %v", ids)
	}
}

func TestStoreSnapshotIsCopy(t *testing.T) {
	store := NewStore()
	store.Refresh(sampleReport)
	snap := store.Snapshot()
	snap.Groups[0].Jobs[0].JobID = "mutated"
	if _, ok := store.Find("42"); !ok {
		t.Error("mutating a returned snapshot changed the store")
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{StatusCommand("/home/u/jm"), "python /home/u/jm/squeuePy.py -json"},
		{StatusCommand("/home/u/jm/"), "python /home/u/jm/squeuePy.py -json"},
		{CancelCommand("42"), "scancel 42"},
		{RemoveCommand("/opt/jm", "42"), "python /opt/jm/sremove.py 42"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestValidJobID(t *testing.T) {
	for _, id := range []string{"42", "1234_5", "job.1"} {
		if !ValidJobID(id) {
			t.Errorf("ValidJobID(%q) = false", id)
		}
	}
	for _, id := range []string{"", "42; rm -rf ~", "$(id)", "a b"} {
		if ValidJobID(id) {
			t.Errorf("ValidJobID(%q) = true", id)
		}
	}
}

func TestSnapshotMarshalJSONKeepsOrder(t *testing.T) {
	snap, _ := Parse(multiGroupReport)
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	again, err := Parse(string(data))
	if err != nil {
		t.Fatalf("Parse(marshalled): %v", err)
	}
	if !reflect.DeepEqual(again.Groups[0].Key, "running") || again.Len() != snap.Len() {
		t.Errorf("re-parsed snapshot = %+v", again)
	}
}
