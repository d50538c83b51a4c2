package extract

const hsbcStatement = `HSBC MEXICO S.A.
ESTADO DE CUENTA TARJETA DE CREDITO
NÚMERO DE CUENTA: 4213 1234 5678 9012
Periodo: 20-Nov-2025 al 19-Dic-2025
Fecha de corte: 19-Dic-2025
d) Fecha límite de pago: 1 sábado, 10-Ene-2026
PAGO PARA NO GENERAR INTERESES: $ 12,345.67
g) Pago mínimo : 4 $ 2,721.44
COMPRAS Y CARGOS DIFERIDOS A MESES CON INTERESES
Tarjeta titular Fecha Descripción Monto original Saldo pendiente Intereses IVA Pago requerido Núm. de pago Tasa aplicable
15-Mar-2025 TRASPASO DE SALDO $ 30,000.00 $ 18,750.00 $ 412.50 $ 66.00 $ 1,250.00 9 de 24 27.50%
CARGOS, ABONOS Y COMPRAS REGULARES (NO A MESES)
Tarjeta titular
21-Nov-2025 22-Nov-2025 OXXO ROMA + $ 45.00
25-Nov-2025 25-Nov-2025 SU PAGO GRACIAS SPEI - $ 5,000.00
30-Nov-2025 01-Dic-2025 NETFLIX MX + $ 219.00
05-Dic-2025 05-Dic-2025 INTERESES ORDINARIOS + $ 312.40
08-Dic-2025 08-Dic-2025 AMAZON MX + $ 1,299.00
08-Dic-2025 09-Dic-2025 AMAZON MX - $ 1,299.00
ATENCIÓN DE QUEJAS
Información SPEI
`

const banamexStatement = `Estado de Cuenta Mensual
Número de tarjeta: 5256 7800 1234 5678
Periodo: 21-nov-2025 al 19-dic-2025
Fecha de corte: 19-dic-2025
Fecha límite de pago: 08-ene-2026
El pago para no generar intereses $20,607.70
El pago mínimo $1,250.00
21-nov-2025 LIVERPOOL POLANCO $12,000.00 $9,000.00 $1,000.00 3 de 12
24-nov-2025 SALDO ANTERIOR $5,000.00
25-nov-2025 STARBUCKS REFORMA $89.00
01-dic-2025 PAGO INTERBANCARIO - $5,000.00
03-dic-2025 NETFLIX.COM $219.00
10-dic-2025 INTERESES ORDINARIOS $0.00
`

const banorteStatement = `Tarjeta de Crédito Banorte
Número de Cuenta: 4931-7300-3738-6081
Periodo: 15-NOV-2025 al 17-DIC-2025
Fecha de corte: 17-DIC-2025
Fecha límite de pago: 06-ENE-2026
Pago para no generar intereses: $14,171.17
Pago mínimo: 4 $4,450.00
Límite de crédito: $80,000.00
Crédito disponible: $52,300.50
29-MAY-2024 BALANCE TRANSFER $34,209.59 $8,235.27 $163.28 $23.13 $1,753.37 19/24 19.99%
20-NOV-2025 21-NOV-2025 WALMART SUPERCENTER +$1,532.10
23-NOV-2025 17-DIC-2025 BALANCE TRANSFER 16/24 +$2,186.99
28-NOV-2025 28-NOV-2025 PAGO RECIBIDO GRACIAS -$10,000.00
17-DIC-2025 17-DIC-2025 IVA INTERESES +$26.12
17-DIC-2025 17-DIC-2025 SALDO TOTAL +$9,999.00
`

const bbvaStatement = `BBVA MEXICO
TARJETA PLATINUM TERMINACION 4321
PERIODO DE FACTURACION: 13-DIC-2025 AL 12-ENE-2026
FECHA DE CORTE: 12-ENE-2026
FECHA LÍMITE DE PAGO: 01-FEB-2026
SALDO ANTERIOR: $ 8,500.00
SALDO DEUDOR TOTAL: $ 11,230.45
PAGO MÍNIMO: $ 650.00
PAGO PARA NO GENERAR INTERESES: $ 9,800.00
LÍMITE DE CRÉDITO: $ 60,000.00
CRÉDITO DISPONIBLE: $ 48,769.55
OPERACIONES DEL PERIODO
15-DIC 16-DIC UBER EATS $ 189.00
28-DIC 29-DIC AMAZON MX 2 DE 6 $ 500.00
03-ENE 03-ENE SU PAGO EN LINEA $ 8,500.00
COMPRAS A MESES SIN INTERESES
12-AGO COSTCO $ 9,000.00 $ 6,000.00 $ 750.00 4 DE 12
COMPRAS/DISPOSICIONES A MESES CON INTERESES
10-OCT EFECTIVO INMEDIATO $ 5,000.00 $ 4,000.00 $ 480.00
20-SEP PRESTAMO PERSONAL $ 20,000.00 $ 15,000.00 $ 1,100.00 5 DE 24 32.50%
TOTAL
`

const liverpoolStatement = `LIVERPOOL
ESTADO DE CUENTA TARJETA DE CRÉDITO
Tarjeta: **** **** **** 7788
Periodo: 01/11/2025 al 30/11/2025
Fecha límite de pago: 20/12/2025
Pago mínimo: $850.00
Pago para no generar intereses: $3,420.00
FECHA DESCRIPCION IMPORTE
03/11/2025 LIVERPOOL PERISUR $1,299.00
15/11/2025 SU PAGO GRACIAS $2,000.00
PANTALLA SAMSUNG 55 3 de 12 MESES $1,250.00
`

const creditCardOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20251215120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>MXN
<CCACCTFROM>
<ACCTID>4111111111114321
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20251101120000[0:GMT]
<DTEND>20251130120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20251105120000[0:GMT]
<TRNAMT>-450.00
<FITID>2025110501
<NAME>POS PURCHASE SUPERAMA POLANCO
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20251120120000[0:GMT]
<TRNAMT>3000.00
<FITID>2025112001
<NAME>PAGO GRACIAS
</STMTTRN>
<STMTTRN>
<TRNTYPE>FEE
<DTPOSTED>20251130120000[0:GMT]
<TRNAMT>-59.00
<FITID>2025113001
<NAME>COMISION ANUAL
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-2450.00
<DTASOF>20251130120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`
