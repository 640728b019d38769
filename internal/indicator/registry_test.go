package indicator

import (
	"testing"

	"github.com/produvia/kryptos-go/internal/config"
	"github.com/produvia/kryptos-go/internal/types"
	"github.com/produvia/kryptos-go/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type RegistryTestSuite struct {
	suite.Suite
	registry Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func (s *RegistryTestSuite) SetupTest() {
	s.registry = NewRegistry()
}

func (s *RegistryTestSuite) TestStandardIndicatorsRegistered() {
	s.ElementsMatch(
		[]types.IndicatorType{types.IndicatorTypeRSI, types.IndicatorTypeMA, types.IndicatorTypeMACD},
		s.registry.List(),
	)
}

func (s *RegistryTestSuite) TestResolveConfiguresInstance() {
	ind, err := s.registry.Resolve(config.IndicatorSpec{
		Type:   types.IndicatorTypeRSI,
		Label:  "RSI_FAST",
		Params: map[string]float64{"period": 7},
	})
	s.Require().NoError(err)

	s.Equal(types.IndicatorTypeRSI, ind.Name())
	s.Equal("RSI_FAST", ind.Label())
}

func (s *RegistryTestSuite) TestResolveUnknownType() {
	_, err := s.registry.Resolve(config.IndicatorSpec{Type: types.IndicatorType("astrology")})
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeIndicatorNotFound))
}

func (s *RegistryTestSuite) TestResolveInvalidParams() {
	_, err := s.registry.Resolve(config.IndicatorSpec{
		Type:   types.IndicatorTypeMA,
		Params: map[string]float64{"fast": 30, "slow": 10},
	})
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (s *RegistryTestSuite) TestDuplicateRegistrationRejected() {
	err := s.registry.Register(types.IndicatorTypeRSI, NewRSI)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeIndicatorAlreadyExists))
}

func (s *RegistryTestSuite) TestResolveReturnsFreshInstances() {
	first, err := s.registry.Resolve(config.IndicatorSpec{Type: types.IndicatorTypeRSI})
	s.Require().NoError(err)
	second, err := s.registry.Resolve(config.IndicatorSpec{Type: types.IndicatorTypeRSI})
	s.Require().NoError(err)

	s.NotSame(first, second)
}
