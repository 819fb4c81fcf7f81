package ipeds

import (
	"aplica-pipeline/internal/components/chrono"
	"aplica-pipeline/internal/components/telemetry"
	"aplica-pipeline/internal/dataset"
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func archive(t testing.TB, files map[string]string) []byte {
	var buff bytes.Buffer
	w := zip.NewWriter(&buff)
	for name, contents := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		_, err = f.Write([]byte(contents))
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buff.Bytes()
}

func TestExtractDecodesLatin1(t *testing.T) {
	// 0xE9 is e-acute in Latin-1
	data := archive(t, map[string]string{
		"README.txt": "not a csv",
		"hd2023.CSV": "UNITID,INSTNM,HBCU\r\n100654,Universit\xe9 de Test,1\r\n",
	})

	table, err := Extract(data)
	require.NoError(t, err)
	require.Equal(t, []string{"UNITID", "INSTNM", "HBCU"}, table.Columns)
	require.Equal(t, "Université de Test", table.Rows[0].Get("INSTNM").String())

	_, err = Extract(archive(t, map[string]string{"notes.txt": "x"}))
	require.ErrorIs(t, err, ErrNoCSV)

	_, err = Extract([]byte("not a zip"))
	require.Error(t, err)
}

func TestDownload(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()

		if r.URL.Path != "/HD23.zip" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(archive(t, map[string]string{"hd2023.csv": "UNITID,INSTNM\n1,A\n"}))
	}))
	defer server.Close()

	tel := telemetry.NewRecorder()
	clock := chrono.NewFake(time.Date(2024, time.November, 1, 0, 0, 0, 0, time.UTC))
	client := NewClient(server.URL+"/", "2023", 5*time.Second, time.Second, clock, tel)
	require.Equal(t, "C_A23.zip", client.Filename("C_A"))

	table, err := client.Download(context.Background(), "HD")
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())

	_, err = client.Download(context.Background(), "ADM")
	require.Error(t, err)
	require.Len(t, tel.Find("warning", report_client_download), 1)

	require.Equal(t, []string{"/HD23.zip", "/ADM23.zip"}, paths)
	require.Equal(t, []time.Duration{time.Second}, clock.Sleeps())
}

func csv(t testing.TB, text string) *dataset.Table {
	table, err := dataset.ReadCSV(bytes.NewBufferString(text))
	if err != nil {
		t.Fatal(err)
	}
	return table
}

func TestMerge(t *testing.T) {
	tables := map[string]*dataset.Table{
		"HD":  csv(t, "UNITID,INSTNM,HBCU,TRIBAL\n1,A,1,2\n2,B,2,2\n"),
		"ADM": csv(t, "UNITID,APPLCN,ADMSSN\n1,1000,300\n"),
		"GR":  csv(t, "UNITID,INSTNM,GRTOTLT\n2,B-gr,88\n2,B-dup,99\n"),
		"SFA": csv(t, "ID,SCFA2\n1,5\n"),
		"C_A": csv(t, "UNITID,CIPCODE,MAJORNUM\n1,11.0701,1\n"),
	}
	tel := telemetry.NewRecorder()

	merged, err := Merge(tables, tel)
	require.NoError(t, err)
	require.Equal(t, []string{"UNITID", "INSTNM", "HBCU", "TRIBAL", "APPLCN", "ADMSSN", "INSTNM_GR", "GRTOTLT"}, merged.Columns)
	require.Equal(t, 2, merged.Len())

	require.Equal(t, "1000", merged.Rows[0].Get("APPLCN").String())
	require.True(t, merged.Rows[0].Get("GRTOTLT").IsMissing())
	require.True(t, merged.Rows[1].Get("APPLCN").IsMissing())
	require.Equal(t, "B-gr", merged.Rows[1].Get("INSTNM_GR").String())
	require.Equal(t, "88", merged.Rows[1].Get("GRTOTLT").String())

	// SFA lacks a UNITID column
	require.Len(t, tel.Find("warning", report_merge), 1)

	delete(tables, "HD")
	_, err = Merge(tables, tel)
	require.Error(t, err)
}

func TestProgramsFromCompletions(t *testing.T) {
	completions := csv(t, ""+
		"UNITID,CIPCODE,MAJORNUM,AWLEVEL,CTOTALT\n"+
		"1,11.0701,1,5,120\n"+
		"1,11.0701,2,5,7\n"+
		"1,99,1,5,900\n"+
		"1,52.0201,1,7,40\n"+
		"1,30.9999,1,3,\n"+
		"2,14.0901,1,5,60\n"+
		"3,14.0901,1,5,60\n",
	)

	programs := ProgramsFromCompletions(completions, map[int64]bool{1: true, 2: true})
	require.Len(t, programs, 4)

	cs := programs[0]
	require.Equal(t, int64(1), cs.UnitID)
	require.Equal(t, "11.0701", cs.CIPCode)
	require.Equal(t, "11", cs.CIP2)
	require.Equal(t, "11.07", cs.CIP4)
	require.Equal(t, "Computer Science (11.0701)", cs.Name)
	require.Equal(t, "Bachelor", cs.DegreeLevel.V)
	require.Equal(t, int64(4), cs.ProgramLengthYears.V)
	require.Equal(t, int64(120), cs.AnnualCompletions.V)

	require.Equal(t, "Master", programs[1].DegreeLevel.V)

	other := programs[2]
	require.False(t, other.Category.Valid)
	require.Equal(t, "CIP 30.9999", other.Name)
	require.False(t, other.AnnualCompletions.Valid)

	require.Equal(t, int64(2), programs[3].UnitID)
}
