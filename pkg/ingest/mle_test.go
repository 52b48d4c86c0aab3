package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/otherjamesbrown/judgeroute/pkg/cnj"
	jrerrors "github.com/otherjamesbrown/judgeroute/pkg/errors"
)

const header = "Número do Processo;Número do Mandado;Órgão/Vara;Jurisdição;Situação do Mandado;Valor do Mandado;Usuário da Ação;Data da Ação\n"

func TestRead(t *testing.T) {
	in := header +
		"\t1234567-89.2023.8.26.0100\t;\tMLE-001 ;1ª Vara Cível;São Paulo;Aguardando Assinatura;1.234,56;joao.silva;05/03/2024\n" +
		"7654321-00.2022.8.26.0001;MLE-002;2ª Vara da Família;Santana;Aguardando Assinatura;10,00;maria;05/03/2024 14:30\n"

	res, err := Read(strings.NewReader(in), Options{Location: time.UTC})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Zero(t, res.Skipped)

	r := res.Records[0]
	assert.Equal(t, "1234567-89.2023.8.26.0100", r.ProcessID)
	assert.Equal(t, "12345678920230100", r.QueryID)
	assert.Equal(t, "MLE-001", r.WritNumber)
	assert.Equal(t, "1ª Vara Cível", r.CourtDivision)
	assert.Equal(t, "São Paulo", r.Jurisdiction)
	assert.Equal(t, "Aguardando Assinatura", r.WritStatus)
	assert.Equal(t, "1.234,56", r.WritValue)
	assert.Equal(t, "joao.silva", r.ActionUser)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), r.ActionDate)
	assert.False(t, r.Judge.Resolved())

	assert.Equal(t, time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC), res.Records[1].ActionDate)
}

func TestRead_BOMAndReorderedColumns(t *testing.T) {
	in := "\ufeffData da Ação;NÚMERO DO PROCESSO;Numero do Mandado;Orgao/Vara;Jurisdicao;Situacao do Mandado;Valor do Mandado;Usuario da Acao;Extra\n" +
		";1234567-89.2023.8.26.0100;M1;Vara;J;S;V;U;x\n"

	res, err := Read(strings.NewReader(in), Options{})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "1234567-89.2023.8.26.0100", res.Records[0].ProcessID)
	assert.Equal(t, "Vara", res.Records[0].CourtDivision)
	assert.True(t, res.Records[0].ActionDate.IsZero())
}

func TestRead_Windows1252(t *testing.T) {
	in := header + "1234567-89.2023.8.26.0100;M1;3ª Vara Cível;São Paulo;S;V;U;01/02/2024\n"
	encoded, err := charmap.Windows1252.NewEncoder().String(in)
	require.NoError(t, err)

	for _, charset := range []string{"", CharsetAuto, CharsetWindows1252} {
		res, err := Read(strings.NewReader(encoded), Options{Charset: charset})
		require.NoError(t, err, charset)
		require.Len(t, res.Records, 1)
		assert.Equal(t, "3ª Vara Cível", res.Records[0].CourtDivision, charset)
	}

	res, err := Read(strings.NewReader(in), Options{Charset: CharsetLatin1})
	require.NoError(t, err)
	assert.NotEqual(t, "3ª Vara Cível", res.Records[0].CourtDivision, "utf-8 bytes read as latin-1")
}

func TestRead_SkipsRowsWithoutProcess(t *testing.T) {
	in := header + "\t;M1;V;J;S;V;U;\n" + "1234567-89.2023.8.26.0100;M2;V;J;S;V;U;\n"
	res, err := Read(strings.NewReader(in), Options{})
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
	assert.Equal(t, 1, res.Skipped)
}

func TestRead_MalformedIDKeptWithoutQuery(t *testing.T) {
	in := header + "123;M1;V;J;S;V;U;\n"
	res, err := Read(strings.NewReader(in), Options{})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "123", res.Records[0].ProcessID)
	assert.Empty(t, res.Records[0].QueryID)
}

func TestRead_OtherCourt(t *testing.T) {
	in := header + "1234567-89.2023.8.13.0024;M1;V;J;S;V;U;\n"
	n := cnj.Normalizer{Infix: "813"}
	res, err := Read(strings.NewReader(in), Options{Normalizer: &n})
	require.NoError(t, err)
	assert.Equal(t, "12345678920230024", res.Records[0].QueryID)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		opts Options
	}{
		{"empty", "", Options{}},
		{"missing column", "Número do Processo;Órgão/Vara\n1;2\n", Options{}},
		{"unknown charset", header, Options{Charset: "ebcdic"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.in), tt.opts)
			require.Error(t, err)
			assert.True(t, jrerrors.IsValidation(err), err.Error())
		})
	}
}

func TestRead_UnparseableDateKeepsRow(t *testing.T) {
	in := header +
		"1234567-89.2023.8.26.0100;M1;V;J;S;V;U;05/03/2024\n" +
		"7654321-00.2022.8.26.0001;M2;V;J;S;V;U;2024-03-05\n"

	res, err := Read(strings.NewReader(in), Options{Location: time.UTC})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, []int{3}, res.BadDates)

	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), res.Records[0].ActionDate)
	assert.Equal(t, "05/03/2024", res.Records[0].ActionDateRaw)

	assert.True(t, res.Records[1].ActionDate.IsZero())
	assert.Equal(t, "2024-03-05", res.Records[1].ActionDateRaw)
	assert.Equal(t, "76543210020220001", res.Records[1].QueryID)
}

func TestRead_MissingColumnsNamed(t *testing.T) {
	_, err := Read(strings.NewReader("Número do Processo;Órgão/Vara\n"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ColWrit)
	assert.Contains(t, err.Error(), ColDate)
	assert.NotContains(t, err.Error(), ColDivision)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mles.csv")
	require.NoError(t, os.WriteFile(path, []byte(header+"1234567-89.2023.8.26.0100;M;V;J;S;V;U;\n"), 0o644))

	res, err := ReadFile(path, Options{})
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.csv"), Options{})
	assert.Error(t, err)
}
