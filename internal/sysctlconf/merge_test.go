package sysctlconf

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	terr "fdtune/internal/errors"
)

var testStamp = Stamp{Tool: "fdtune", Time: time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)}

func bufferParams() *ParameterSet {
	return NewParameterSet(
		Param{Key: "net.core.rmem_max", Value: "67108864"},
		Param{Key: "net.core.wmem_max", Value: "67108864"},
	)
}

func TestMergeSupersedesDifferingValue(t *testing.T) {
	current := "net.core.rmem_max = 4096\n"

	got, result, err := Merge(current, bufferParams(), testStamp)
	require.NoError(t, err)

	want := "# superseded by fdtune on 2026-10-17 09:30:00Z: net.core.rmem_max = 4096\n" +
		"net.core.rmem_max = 67108864\n" +
		"\n" +
		"# Added by fdtune on 2026-10-17 09:30:00Z\n" +
		"net.core.wmem_max = 67108864\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("merged text mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{"net.core.wmem_max"}, result.Added)
	assert.Equal(t, []string{"net.core.rmem_max"}, result.AlreadyPresent)
	assert.Equal(t, []string{"net.core.rmem_max"}, result.Replaced)
	require.Len(t, result.Superseded, 1)
	assert.Equal(t, Superseded{Key: "net.core.rmem_max", Line: 1, Original: "net.core.rmem_max = 4096", Reason: ReasonValueDiffers}, result.Superseded[0])
	assert.Equal(t, 1, countActive(got, "net.core.wmem_max", "67108864"))
	assert.Equal(t, 1, countActive(got, "net.core.rmem_max", "67108864"))
}

func TestMergeIsIdempotent(t *testing.T) {
	current := strings.Join([]string{
		"# local tweaks",
		"kernel.pid_max = 4194304",
		"",
		"net.core.rmem_max=4096",
		"vm.swappiness = 10",
	}, "\n") + "\n"
	desired := bufferParams()
	desired.Set("net.ipv4.tcp_rmem", "4096 87380 33554432")

	first, _, err := Merge(current, desired, testStamp)
	require.NoError(t, err)

	later := Stamp{Tool: "fdtune", Time: testStamp.Time.Add(48 * time.Hour)}
	second, result, err := Merge(first, desired, later)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Empty(t, result.Added)
	assert.ElementsMatch(t, desired.Keys(), result.AlreadyPresent)
	assert.False(t, result.Changed())
	for _, key := range desired.Keys() {
		class, ok := result.Classify(key)
		require.True(t, ok, key)
		assert.Equal(t, AlreadyPresent, class)
	}
}

func TestMergePreservesUnrelatedLines(t *testing.T) {
	unrelated := []string{
		"#",
		"# /etc/sysctl.conf - Configuration file for setting system variables",
		"",
		"  kernel.domainname = example.com",
		"; legacy comment",
		"fs.file-max=2097152",
		"this line is not an assignment",
		"\t",
	}
	current := strings.Join(append(unrelated[:4:4], append([]string{"net.core.wmem_max = 1"}, unrelated[4:]...)...), "\n") + "\n"

	got, _, err := Merge(current, bufferParams(), testStamp)
	require.NoError(t, err)

	var kept []string
	for _, line := range strings.Split(strings.TrimSuffix(got, "\n"), "\n") {
		for _, u := range unrelated {
			if line == u {
				kept = append(kept, line)
				break
			}
		}
	}
	if diff := cmp.Diff(unrelated, kept); diff != "" {
		t.Fatalf("unrelated lines changed (-want +got):\n%s", diff)
	}
}

func TestMergeEmptyDocument(t *testing.T) {
	desired := NewParameterSet(
		Param{Key: "net.ipv4.tcp_no_metrics_save", Value: "1"},
		Param{Key: "net.core.default_qdisc", Value: "fq"},
	)

	got, result, err := Merge("", desired, testStamp)
	require.NoError(t, err)

	want := "# Added by fdtune on 2026-10-17 09:30:00Z\n" +
		"net.core.default_qdisc = fq\n" +
		"net.ipv4.tcp_no_metrics_save = 1\n"
	assert.Equal(t, want, got)
	assert.Equal(t, []string{"net.core.default_qdisc", "net.ipv4.tcp_no_metrics_save"}, result.Added)
	assert.Empty(t, result.AlreadyPresent)
}

func TestMergeNothingDesired(t *testing.T) {
	current := "vm.swappiness = 10"

	got, result, err := Merge(current, NewParameterSet(), testStamp)
	require.NoError(t, err)
	assert.Equal(t, "vm.swappiness = 10\n", got)
	assert.False(t, result.Changed())
}

func TestMergeKeepsMatchingLineInPlace(t *testing.T) {
	current := "net.core.rmem_max   =   67108864\nvm.swappiness = 10\n"

	got, result, err := Merge(current, NewParameterSet(Param{Key: "net.core.rmem_max", Value: "67108864"}), testStamp)
	require.NoError(t, err)
	assert.Equal(t, current, got)
	assert.Equal(t, []string{"net.core.rmem_max"}, result.AlreadyPresent)
	assert.Empty(t, result.Superseded)
}

func TestMergeCollapsesWhitespaceInValues(t *testing.T) {
	current := "net.ipv4.tcp_rmem = 4096\t87380   33554432\n"

	got, result, err := Merge(current, NewParameterSet(Param{Key: "net.ipv4.tcp_rmem", Value: "4096 87380 33554432"}), testStamp)
	require.NoError(t, err)
	assert.Equal(t, current, got)
	assert.Empty(t, result.Superseded)
}

func TestMergeDuplicateActiveLines(t *testing.T) {
	current := strings.Join([]string{
		"net.core.rmem_max = 67108864",
		"vm.swappiness = 10",
		"net.core.rmem_max = 4096",
		"net.core.rmem_max = 67108864",
	}, "\n") + "\n"

	got, result, err := Merge(current, NewParameterSet(Param{Key: "net.core.rmem_max", Value: "67108864"}), testStamp)
	require.NoError(t, err)

	assert.Equal(t, 1, countActive(got, "net.core.rmem_max", "67108864"))
	assert.True(t, strings.HasPrefix(got, "net.core.rmem_max = 67108864\nvm.swappiness = 10\n"))
	require.Len(t, result.Superseded, 2)
	assert.Equal(t, ReasonValueDiffers, result.Superseded[0].Reason)
	assert.Equal(t, 3, result.Superseded[0].Line)
	assert.Equal(t, ReasonDuplicate, result.Superseded[1].Reason)
	assert.Empty(t, result.Replaced)
}

func TestMergeReplacementFollowsLastSupersededLine(t *testing.T) {
	current := "net.core.rmem_max = 1\nvm.swappiness = 10\nnet.core.rmem_max = 2\nfs.file-max = 9\n"

	got, _, err := Merge(current, NewParameterSet(Param{Key: "net.core.rmem_max", Value: "3"}), testStamp)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "# superseded"))
	assert.Equal(t, "vm.swappiness = 10", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "# superseded"))
	assert.Equal(t, "net.core.rmem_max = 3", lines[3])
	assert.Equal(t, "fs.file-max = 9", lines[4])
}

func TestMergeIgnoresCommentedKeys(t *testing.T) {
	current := "# net.core.wmem_max = 4096\n;net.core.rmem_max = 1\n"

	got, result, err := Merge(current, bufferParams(), testStamp)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, current+"\n# Added by"))
	assert.ElementsMatch(t, []string{"net.core.rmem_max", "net.core.wmem_max"}, result.Added)
}

func TestMergeMatchesSlashAndIgnoreMarkerKeys(t *testing.T) {
	current := "-net/core/rmem_max = 4096\n"

	got, result, err := Merge(current, NewParameterSet(Param{Key: "net.core.rmem_max", Value: "67108864"}), testStamp)
	require.NoError(t, err)
	assert.Equal(t, []string{"net.core.rmem_max"}, result.AlreadyPresent)
	assert.Contains(t, got, "# superseded by fdtune on 2026-10-17 09:30:00Z: -net/core/rmem_max = 4096\n")
	assert.Contains(t, got, "\nnet.core.rmem_max = 67108864\n")
}

func TestMergePreservesCRLF(t *testing.T) {
	current := "vm.swappiness = 10\r\nnet.core.rmem_max = 1\r\n"

	got, _, err := Merge(current, bufferParams(), testStamp)
	require.NoError(t, err)

	for _, line := range strings.SplitAfter(got, "\n") {
		if line == "" {
			continue
		}
		assert.True(t, strings.HasSuffix(line, "\r\n"), "line %q lacks CRLF", line)
	}
	assert.True(t, strings.HasPrefix(got, "vm.swappiness = 10\r\n"))
}

func TestMergeAddsTrailingNewline(t *testing.T) {
	got, _, err := Merge("vm.swappiness = 10", bufferParams(), testStamp)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "vm.swappiness = 10\n\n# Added by"))
	assert.True(t, strings.HasSuffix(got, "67108864\n"))
	assert.False(t, strings.HasSuffix(got, "\n\n"))
}

func TestMergeRejectsInvalidDocument(t *testing.T) {
	for name, text := range map[string]string{
		"nul":     "net.core.rmem_max = 1\x00\n",
		"invalid": "net.core.rmem_max = \xff\xfe\n",
	} {
		t.Run(name, func(t *testing.T) {
			got, result, err := Merge(text, bufferParams(), testStamp)
			require.Error(t, err)
			assert.True(t, errors.Is(err, terr.ErrInvalidDocument))
			assert.Empty(t, got)
			assert.False(t, result.Changed())
		})
	}
}

func countActive(text, key, value string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		cl := ClassifyLine(line)
		if cl.Kind == LineAssignment && cl.Key == key && cl.Value == value {
			n++
		}
	}
	return n
}

func TestMergeClassifiesSlashSeparatedKeys(t *testing.T) {
	current := "net.core.rmem_max = 2\n"
	desired := NewParameterSet(
		Param{Key: "net.core.rmem_max", Value: "1"},
		Param{Key: "net/core/rmem_max", Value: "2"},
		Param{Key: "net/core/wmem_max", Value: "3"},
	)

	got, result, err := Merge(current, desired, testStamp)
	require.NoError(t, err)
	assert.Equal(t, []string{"net.core.rmem_max"}, result.AlreadyPresent)
	assert.Equal(t, []string{"net.core.wmem_max"}, result.Added)
	assert.Contains(t, got, "net.core.wmem_max = 3\n")
}
