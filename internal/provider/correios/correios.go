package correios

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"shippingquote/internal/httpx"
	"shippingquote/internal/logger"
	"shippingquote/internal/provider"
)

const defaultURL = "http://ws.correios.com.br/calculador/CalcPrecoPrazo.aspx"

// Service is one Correios service level.
type Service struct {
	Code  string
	Label string
	// MaxWeightGrams limits the service to light parcels; 0 means no limit.
	MaxWeightGrams float64
}

var (
	PAC     = Service{Code: "04510", Label: "PAC"}
	SEDEX   = Service{Code: "04014", Label: "SEDEX"}
	SEDEX10 = Service{Code: "40215", Label: "SEDEX 10", MaxWeightGrams: 10000}
)

type Config struct {
	Name           string
	URL            string
	CompanyCode    string // optional contract credentials
	Password       string
	OriginCEP      string
	Services       []Service
	MinWeightKilos float64
}

// Provider quotes Correios services one request at a time.
type Provider struct {
	cfg    Config
	client httpx.HTTPClient
	log    *zap.Logger
}

func New(cfg Config, client httpx.HTTPClient, log *zap.Logger) *Provider {
	if cfg.Name == "" {
		cfg.Name = "Correios"
	}
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if len(cfg.Services) == 0 {
		cfg.Services = []Service{PAC, SEDEX, SEDEX10}
	}
	if cfg.MinWeightKilos <= 0 {
		cfg.MinWeightKilos = 0.1
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Provider{cfg: cfg, client: client, log: logger.OrNop(log).Named(cfg.Name)}
}

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) Calculate(ctx context.Context, postalCode string, weightGrams float64) ([]provider.Quote, error) {
	dest := provider.DigitsOnly(postalCode)
	if len(dest) != 8 {
		p.log.Warn("invalid destination postal code", zap.String("postal_code", postalCode))
		return nil, nil
	}
	box := BoxFor(weightGrams)
	kilos := provider.GramsToKilograms(weightGrams, p.cfg.MinWeightKilos)

	var out []provider.Quote
	for _, svc := range p.cfg.Services {
		if svc.MaxWeightGrams > 0 && weightGrams > svc.MaxWeightGrams {
			continue
		}
		q, err := p.quoteService(ctx, svc, dest, kilos, box)
		if err != nil {
			p.log.Warn("service quote failed", zap.String("service", svc.Label), zap.Error(err))
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (p *Provider) quoteService(ctx context.Context, svc Service, dest string, kilos float64, box Box) (provider.Quote, error) {
	form := url.Values{}
	form.Set("nCdEmpresa", p.cfg.CompanyCode)
	form.Set("sDsSenha", p.cfg.Password)
	form.Set("nCdServico", svc.Code)
	form.Set("sCepOrigem", provider.DigitsOnly(p.cfg.OriginCEP))
	form.Set("sCepDestino", dest)
	form.Set("nVlPeso", strconv.FormatFloat(kilos, 'f', -1, 64))
	form.Set("nCdFormato", "1")
	form.Set("nVlComprimento", strconv.Itoa(box.Length))
	form.Set("nVlAltura", strconv.Itoa(box.Height))
	form.Set("nVlLargura", strconv.Itoa(box.Width))
	form.Set("nVlDiametro", "0")
	form.Set("sCdMaoPropria", "N")
	form.Set("nVlValorDeclarado", "0")
	form.Set("sCdAvisoRecebimento", "N")
	form.Set("StrRetorno", "xml")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return provider.Quote{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/xml, text/xml")

	res, err := p.client.Do(req)
	if err != nil {
		return provider.Quote{}, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 1<<10))
		return provider.Quote{}, fmt.Errorf("unexpected status code %d: %s", res.StatusCode, string(b))
	}

	svcResult, err := decodeService(res.Body)
	if err != nil {
		return provider.Quote{}, err
	}
	return svcResult.toQuote(svc)
}

// Box is a package size in whole centimeters.
type Box struct {
	Height int
	Width  int
	Length int
}

// BoxFor estimates the parcel box from its weight, starting at the smallest
// box Correios accepts.
func BoxFor(weightGrams float64) Box {
	switch {
	case weightGrams > 2000:
		return Box{Height: 8, Width: 20, Length: 30}
	case weightGrams > 500:
		return Box{Height: 4, Width: 15, Length: 20}
	default:
		return Box{Height: 2, Width: 11, Length: 16}
	}
}

// calcResponse mirrors the CalcPrecoPrazo XML payload:
//
//	<Servicos><cServico><Codigo>04014</Codigo><Valor>25,50</Valor>
//	<PrazoEntrega>3</PrazoEntrega><Erro>0</Erro><MsgErro></MsgErro></cServico></Servicos>
type calcResponse struct {
	XMLName  xml.Name        `xml:"Servicos"`
	Services []serviceResult `xml:"cServico"`
}

type serviceResult struct {
	Code         string `xml:"Codigo"`
	Price        string `xml:"Valor"`
	DeliveryDays string `xml:"PrazoEntrega"`
	ErrorCode    string `xml:"Erro"`
	ErrorMsg     string `xml:"MsgErro"`
}

func decodeService(r io.Reader) (serviceResult, error) {
	var body calcResponse
	dec := xml.NewDecoder(io.LimitReader(r, 1<<20))
	dec.CharsetReader = charsetReader
	if err := dec.Decode(&body); err != nil {
		return serviceResult{}, fmt.Errorf("decoding response: %w", err)
	}
	if len(body.Services) == 0 {
		return serviceResult{}, fmt.Errorf("response has no cServico element")
	}
	return body.Services[0], nil
}

// charsetReader handles the Latin-1 declaration the calculator sends.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	}
	return nil, fmt.Errorf("unsupported charset %q", label)
}

func (s serviceResult) toQuote(svc Service) (provider.Quote, error) {
	if code := strings.TrimSpace(s.ErrorCode); code != "" {
		n, err := strconv.Atoi(code)
		if err != nil || n != 0 {
			return provider.Quote{}, fmt.Errorf("service error %s: %s", code, strings.TrimSpace(s.ErrorMsg))
		}
	}
	price, err := provider.ParseBRL(s.Price)
	if err != nil {
		return provider.Quote{}, err
	}
	if price.IsNegative() {
		return provider.Quote{}, fmt.Errorf("negative price %s", price)
	}
	days := strings.TrimSpace(s.DeliveryDays)
	if days == "" {
		return provider.Quote{}, fmt.Errorf("missing delivery days")
	}
	return provider.Quote{Label: svc.Label, Price: price, EstimatedTransit: provider.BusinessDays(days)}, nil
}
