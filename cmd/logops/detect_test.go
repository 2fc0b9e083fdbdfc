package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytelemetry/logops/internal/model"
	"gopkg.in/yaml.v3"
)

func errorHeavyInput() string {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		level := "info"
		if i%2 == 0 {
			level = "error"
		}
		fmt.Fprintf(&b, `{"timestamp":"2024-01-01T10:00:00Z","service":"api","level":%q,"msg":"request %d"}`+"\n", level, i)
	}
	b.WriteString("not json\n")
	return b.String()
}

func testConfig(t *testing.T) appConfig {
	t.Helper()
	withHome(t)
	cfg, err := loadConfig("", nil)
	require.NoError(t, err)
	return cfg
}

func TestRunDetectJSON(t *testing.T) {
	cfg := testConfig(t)
	var out, errOut bytes.Buffer

	require.NoError(t, runDetect(cfg, strings.NewReader(errorHeavyInput()), &out, &errOut, "json"))

	var result detectOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, 30, result.Analyzed)
	assert.Equal(t, 1, result.Skipped)
	assert.Contains(t, errOut.String(), "line 31")
	require.Len(t, result.Detectors, 4)
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, model.AnomalyHighErrorRate, result.Anomalies[0].Type)
}

func TestRunDetectYAMLWithLowerThreshold(t *testing.T) {
	cfg := testConfig(t)
	cfg.AnomalyThreshold = 0.4
	var out bytes.Buffer

	require.NoError(t, runDetect(cfg, strings.NewReader(errorHeavyInput()), &out, &bytes.Buffer{}, "yaml"))

	var result struct {
		Anomalies []struct {
			Type string `yaml:"type"`
		} `yaml:"anomalies"`
	}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &result))
	var types []string
	for _, a := range result.Anomalies {
		types = append(types, a.Type)
	}
	assert.Equal(t, []string{string(model.AnomalyHighErrorRate), string(model.AnomalyServiceErrorSpike)}, types)
}

func TestRunDetectRejectsFormat(t *testing.T) {
	cfg := testConfig(t)
	err := runDetect(cfg, strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{}, "xml")
	assert.Error(t, err)
}

func TestRunDetectEmptyInput(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	require.NoError(t, runDetect(cfg, strings.NewReader("\n\n"), &out, &bytes.Buffer{}, "json"))

	var result detectOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Zero(t, result.Analyzed)
	assert.Empty(t, result.Anomalies)
	assert.Empty(t, result.Detectors)
}
